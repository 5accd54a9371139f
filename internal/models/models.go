package models

import (
	"encoding/json"
	"time"
)

// Entity names of the synced business tables. These are the local names; the
// remote table names live in the translator's schema registry.
const (
	EntityDrugs            = "drugs"
	EntityDrugBatches      = "drugBatches"
	EntitySuppliers        = "suppliers"
	EntityPurchaseInvoices = "purchaseInvoices"
	EntitySaleInvoices     = "saleInvoices"
	EntityPayments         = "payments"
	EntityRoles            = "roles"
	EntityUsers            = "users"
	EntitySettings         = "settings"
	EntityActivityLog      = "activityLog"
)

// SyncedEntities lists every entity that gets a local table and an outbox hook,
// in dependency order (referenced entities first).
var SyncedEntities = []string{
	EntityDrugs,
	EntityDrugBatches,
	EntitySuppliers,
	EntityPurchaseInvoices,
	EntitySaleInvoices,
	EntityPayments,
	EntityRoles,
	EntityUsers,
	EntitySettings,
	EntityActivityLog,
}

// IsSyncedEntity reports whether name is one of SyncedEntities.
func IsSyncedEntity(name string) bool {
	for _, e := range SyncedEntities {
		if e == name {
			return true
		}
	}
	return false
}

// ActionType is the kind of change an outbox entry describes.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Valid reports whether a is one of the three outbox actions.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// DrugType is the dosage form of a drug.
type DrugType string

const (
	DrugTypeTablet    DrugType = "tablet"
	DrugTypeSyrup     DrugType = "syrup"
	DrugTypeInjection DrugType = "injection"
	DrugTypeOintment  DrugType = "ointment"
	DrugTypeDrops     DrugType = "drops"
	DrugTypeOther     DrugType = "other"
)

// Drug is a sellable item. TotalStock aggregates its batches.
type Drug struct {
	ID              int64    `json:"id,omitempty"`
	Name            string   `json:"name"`
	Company         string   `json:"company,omitempty"`
	PurchasePrice   float64  `json:"purchasePrice"`
	SalePrice       float64  `json:"salePrice"`
	TotalStock      int      `json:"totalStock"`
	Type            DrugType `json:"type,omitempty"`
	InternalBarcode string   `json:"internalBarcode,omitempty"`
	Barcode         string   `json:"barcode,omitempty"`
	LowStock        bool     `json:"lowStock,omitempty"` // derived locally, never synced
}

// DrugBatch is one lot of a drug, consumed FEFO by sales.
type DrugBatch struct {
	ID              int64   `json:"id,omitempty"`
	DrugID          int64   `json:"drugId"`
	LotNumber       string  `json:"lotNumber"`
	ExpiryDate      string  `json:"expiryDate"` // YYYY-MM-DD
	QuantityInStock int     `json:"quantityInStock"`
	PurchasePrice   float64 `json:"purchasePrice"`
}

// Supplier is a wholesaler the pharmacy buys from.
type Supplier struct {
	ID            int64   `json:"id,omitempty"`
	Name          string  `json:"name"`
	ContactPerson string  `json:"contactPerson,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	TotalDebt     float64 `json:"totalDebt"`
}

// PurchaseInvoiceItem is one line of a purchase invoice.
type PurchaseInvoiceItem struct {
	DrugID        int64   `json:"drugId"`
	Name          string  `json:"name"`
	Quantity      int     `json:"quantity"`
	PurchasePrice float64 `json:"purchasePrice"`
	LotNumber     string  `json:"lotNumber"`
	ExpiryDate    string  `json:"expiryDate"`
}

// PurchaseInvoice is a composite: header fields plus an ordered item list.
type PurchaseInvoice struct {
	ID            int64                 `json:"id,omitempty"`
	InvoiceNumber string                `json:"invoiceNumber"`
	SupplierID    int64                 `json:"supplierId"`
	Date          string                `json:"date"`
	Items         []PurchaseInvoiceItem `json:"items"`
	TotalAmount   float64               `json:"totalAmount"`
	AmountPaid    float64               `json:"amountPaid"`
}

// BatchDeduction records how much of a sale came out of which batch, so a
// sale can be reversed onto the same batches.
type BatchDeduction struct {
	BatchID  int64 `json:"batchId"`
	Quantity int   `json:"quantity"`
}

// SaleItem is one line of a sale invoice.
type SaleItem struct {
	DrugID     int64            `json:"drugId"`
	Name       string           `json:"name"`
	Quantity   int              `json:"quantity"`
	UnitPrice  float64          `json:"unitPrice"`
	TotalPrice float64          `json:"totalPrice"`
	Deductions []BatchDeduction `json:"deductions"`
}

// SaleInvoice is a composite sale with its item list.
type SaleInvoice struct {
	ID          int64      `json:"id,omitempty"`
	Date        string     `json:"date"`
	Items       []SaleItem `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
	Printed     bool       `json:"printed,omitempty"` // local print bookkeeping, never synced
}

// Payment is money paid to a supplier.
type Payment struct {
	ID            int64   `json:"id,omitempty"`
	SupplierID    int64   `json:"supplierId"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"`
	RecipientName string  `json:"recipientName,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// Role groups permissions.
type Role struct {
	ID          int64    `json:"id,omitempty"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	IsEditable  bool     `json:"isEditable"`
}

// User is an employee account.
type User struct {
	ID           int64  `json:"id,omitempty"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	RoleID       int64  `json:"roleId"`
}

// Setting is a key/value application setting.
type Setting struct {
	ID    int64           `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ActivityLog records a significant user action.
type ActivityLog struct {
	ID         int64          `json:"id,omitempty"`
	Timestamp  string         `json:"timestamp"`
	UserID     int64          `json:"userId"`
	Username   string         `json:"username"`
	ActionType string         `json:"actionType"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Details    map[string]any `json:"details,omitempty"`
}

// OutboxPayload is the body of an outbox entry.
//
// For create, Data is the full record (including id and clientId). For update,
// Data holds only the changed fields. For delete, Data is empty and RemoteKey is
// set when it was known at enqueue time.
type OutboxPayload struct {
	ID        int64          `json:"id"`
	ClientID  string         `json:"clientId"`
	RemoteKey *int64         `json:"remoteKey,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// OutboxEntry is one queued remote operation. Entries are append-only.
type OutboxEntry struct {
	Seq        int64
	Entity     string
	Action     ActionType
	LocalKey   int64
	Payload    OutboxPayload
	EnqueuedAt time.Time
}

// QuarantinedEntry is an outbox row the drainer could not interpret.
type QuarantinedEntry struct {
	Seq           int64
	Entity        string
	Action        string
	RawPayload    string
	Reason        string
	QuarantinedAt time.Time
}

// EntryFailure is the operator-facing failure record of a stuck outbox entry.
type EntryFailure struct {
	Seq       int64
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// SyncState is the coarse sync state shown to observers.
type SyncState string

const (
	SyncOffline SyncState = "offline"
	SyncPending SyncState = "pending"
	SyncSyncing SyncState = "syncing"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

// SyncStatus is the latest sync state plus the counters that go with it.
// Only the fields relevant to State are meaningful.
type SyncStatus struct {
	State     SyncState `json:"status"`
	Pending   int       `json:"count,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	At        time.Time `json:"at"`
}
