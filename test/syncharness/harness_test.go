package syncharness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
)

func exists(rec *db.Record) bool { return rec != nil }

func TestCreatePropagatesToOtherDevice(t *testing.T) {
	h := NewHarness(t, 2)
	h.Follow("device-B")

	drug := h.Create("device-A", models.EntityDrugs, map[string]any{
		"name": "Paracetamol 500mg", "purchasePrice": 10, "salePrice": 15, "totalStock": 40,
	})
	res := h.Push("device-A")
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, h.Pending("device-A"))

	rk := h.RemoteKey("device-A", models.EntityDrugs, drug)
	require.NotZero(t, rk, "push should store the remote key")

	rec := h.WaitFor("device-B", models.EntityDrugs, rk, exists)
	assert.Equal(t, "Paracetamol 500mg", rec.Data["name"])
	assert.EqualValues(t, 40, rec.Data["totalStock"])
	assert.Equal(t, 0, h.Pending("device-B"), "applied remote changes are never queued")
}

func TestUpdateAndDeletePropagate(t *testing.T) {
	h := NewHarness(t, 2)
	h.Follow("device-B")

	drug := h.Create("device-A", models.EntityDrugs, map[string]any{"name": "Ibuprofen", "totalStock": 12})
	require.NoError(t, h.Push("device-A").Err)
	rk := h.RemoteKey("device-A", models.EntityDrugs, drug)
	h.WaitFor("device-B", models.EntityDrugs, rk, exists)

	h.Update("device-A", models.EntityDrugs, drug, map[string]any{"totalStock": 7})
	require.NoError(t, h.Push("device-A").Err)
	h.WaitFor("device-B", models.EntityDrugs, rk, func(r *db.Record) bool {
		return r != nil && r.Data["totalStock"] == float64(7)
	})

	h.Delete("device-A", models.EntityDrugs, drug)
	require.NoError(t, h.Push("device-A").Err)
	h.WaitFor("device-B", models.EntityDrugs, rk, func(r *db.Record) bool { return r == nil })
}

func TestForeignKeysResolveOnBothSides(t *testing.T) {
	h := NewHarness(t, 2)
	h.Follow("device-B")

	drug := h.Create("device-A", models.EntityDrugs, map[string]any{"name": "Amoxicillin", "totalStock": 30})
	batch := h.Create("device-A", models.EntityDrugBatches, map[string]any{
		"drugId": drug, "lotNumber": "AMX-01", "expiryDate": "2027-05-31", "quantityInStock": 30,
	})
	res := h.Push("device-A")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Processed)

	drugRemote := h.RemoteKey("device-A", models.EntityDrugs, drug)
	batchRemote := h.RemoteKey("device-A", models.EntityDrugBatches, batch)
	require.NotZero(t, batchRemote)

	bDrug := h.WaitFor("device-B", models.EntityDrugs, drugRemote, exists)
	bBatch := h.WaitFor("device-B", models.EntityDrugBatches, batchRemote, exists)
	assert.EqualValues(t, bDrug.LocalKey, bBatch.Data["drugId"], "batch points at device B's own drug key")
	assert.Equal(t, "AMX-01", bBatch.Data["lotNumber"])
}

func TestOwnChangesAreNotEchoed(t *testing.T) {
	h := NewHarness(t, 2)
	h.Follow("device-A")
	h.Follow("device-B")

	drug := h.Create("device-A", models.EntityDrugs, map[string]any{"name": "Cetirizine"})
	require.NoError(t, h.Push("device-A").Err)
	rk := h.RemoteKey("device-A", models.EntityDrugs, drug)
	h.WaitFor("device-B", models.EntityDrugs, rk, exists)

	var count int
	require.NoError(t, h.Devices["device-A"].Store.View(context.Background(), func(tx *db.Tx) error {
		recs, err := tx.ListRecords(models.EntityDrugs, -1)
		count = len(recs)
		return err
	}))
	assert.Equal(t, 1, count, "device A keeps exactly one copy of its own drug")
	assert.Empty(t, h.ApplyErrors("device-A"))
	assert.Empty(t, h.ApplyErrors("device-B"))
}

func TestOfflineDeviceCatchesUpInOrder(t *testing.T) {
	h := NewHarness(t, 1)

	first := h.Create("device-A", models.EntitySuppliers, map[string]any{"name": "MedSupply"})
	h.Update("device-A", models.EntitySuppliers, first, map[string]any{"phone": "0100"})
	second := h.Create("device-A", models.EntitySuppliers, map[string]any{"name": "PharmaCo"})
	assert.Equal(t, 3, h.Pending("device-A"))

	res := h.Push("device-A")
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 0, res.Remaining)

	for _, key := range []int64{first, second} {
		assert.NotZero(t, h.RemoteKey("device-A", models.EntitySuppliers, key))
	}

	var history []db.SyncHistoryEntry
	require.NoError(t, h.Devices["device-A"].Store.View(context.Background(), func(tx *db.Tx) error {
		var err error
		history, err = tx.SyncHistoryTail(10)
		return err
	}))
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, db.DirectionPush, e.Direction)
		assert.EqualValues(t, i+1, e.Seq)
	}
}
