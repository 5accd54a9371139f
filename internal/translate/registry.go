package translate

import (
	"sort"

	"github.com/marcus/rxsync/internal/models"
)

// Field maps one local (camelCase) field to its remote (snake_case) column.
type Field struct {
	Local  string
	Remote string
	// Ref names the entity whose local key this field holds. The value is
	// rewritten to that entity's remote key on the way out.
	Ref string
	// JSON columns hold structured values as JSON text on the remote side.
	JSON bool
	// Elem describes the objects of a list-valued field. Such a field is
	// translated element-wise and stored as JSON.
	Elem []Field
}

// Items describes the item list of a composite entity, stored remotely as a
// child table keyed back to the header row.
type Items struct {
	Field      string
	Table      string
	ForeignKey string
	Fields     []Field
}

// Schema is the translation rule set for one entity.
type Schema struct {
	Entity    string
	Table     string
	Fields    []Field
	LocalOnly []string
	Items     *Items
}

// positionColumn orders child rows; it has no local counterpart.
const positionColumn = "position"

var registry = []Schema{
	{
		Entity: models.EntityDrugs,
		Table:  "drugs",
		Fields: []Field{
			{Local: "name", Remote: "name"},
			{Local: "company", Remote: "company"},
			{Local: "purchasePrice", Remote: "purchase_price"},
			{Local: "salePrice", Remote: "sale_price"},
			{Local: "totalStock", Remote: "total_stock"},
			{Local: "type", Remote: "type"},
			{Local: "internalBarcode", Remote: "internal_barcode"},
			{Local: "barcode", Remote: "barcode"},
		},
		LocalOnly: []string{"lowStock"},
	},
	{
		Entity: models.EntityDrugBatches,
		Table:  "drug_batches",
		Fields: []Field{
			{Local: "drugId", Remote: "drug_id", Ref: models.EntityDrugs},
			{Local: "lotNumber", Remote: "lot_number"},
			{Local: "expiryDate", Remote: "expiry_date"},
			{Local: "quantityInStock", Remote: "quantity_in_stock"},
			{Local: "purchasePrice", Remote: "purchase_price"},
		},
	},
	{
		Entity: models.EntitySuppliers,
		Table:  "suppliers",
		Fields: []Field{
			{Local: "name", Remote: "name"},
			{Local: "contactPerson", Remote: "contact_person"},
			{Local: "phone", Remote: "phone"},
			{Local: "totalDebt", Remote: "total_debt"},
		},
	},
	{
		Entity: models.EntityPurchaseInvoices,
		Table:  "purchase_invoices",
		Fields: []Field{
			{Local: "invoiceNumber", Remote: "invoice_number"},
			{Local: "supplierId", Remote: "supplier_id", Ref: models.EntitySuppliers},
			{Local: "date", Remote: "date"},
			{Local: "totalAmount", Remote: "total_amount"},
			{Local: "amountPaid", Remote: "amount_paid"},
		},
		Items: &Items{
			Field:      "items",
			Table:      "purchase_invoice_items",
			ForeignKey: "invoice_id",
			Fields: []Field{
				{Local: "drugId", Remote: "drug_id", Ref: models.EntityDrugs},
				{Local: "name", Remote: "name"},
				{Local: "quantity", Remote: "quantity"},
				{Local: "purchasePrice", Remote: "purchase_price"},
				{Local: "lotNumber", Remote: "lot_number"},
				{Local: "expiryDate", Remote: "expiry_date"},
			},
		},
	},
	{
		Entity: models.EntitySaleInvoices,
		Table:  "sale_invoices",
		Fields: []Field{
			{Local: "date", Remote: "date"},
			{Local: "totalAmount", Remote: "total_amount"},
		},
		LocalOnly: []string{"printed"},
		Items: &Items{
			Field:      "items",
			Table:      "sale_invoice_items",
			ForeignKey: "invoice_id",
			Fields: []Field{
				{Local: "drugId", Remote: "drug_id", Ref: models.EntityDrugs},
				{Local: "name", Remote: "name"},
				{Local: "quantity", Remote: "quantity"},
				{Local: "unitPrice", Remote: "unit_price"},
				{Local: "totalPrice", Remote: "total_price"},
				{Local: "deductions", Remote: "deductions", Elem: []Field{
					{Local: "batchId", Remote: "batch_id", Ref: models.EntityDrugBatches},
					{Local: "quantity", Remote: "quantity"},
				}},
			},
		},
	},
	{
		Entity: models.EntityPayments,
		Table:  "payments",
		Fields: []Field{
			{Local: "supplierId", Remote: "supplier_id", Ref: models.EntitySuppliers},
			{Local: "amount", Remote: "amount"},
			{Local: "date", Remote: "date"},
			{Local: "recipientName", Remote: "recipient_name"},
			{Local: "description", Remote: "description"},
		},
	},
	{
		Entity: models.EntityRoles,
		Table:  "roles",
		Fields: []Field{
			{Local: "name", Remote: "name"},
			{Local: "permissions", Remote: "permissions", JSON: true},
			{Local: "isEditable", Remote: "is_editable"},
		},
	},
	{
		Entity: models.EntityUsers,
		Table:  "users",
		Fields: []Field{
			{Local: "username", Remote: "username"},
			{Local: "passwordHash", Remote: "password_hash"},
			{Local: "roleId", Remote: "role_id", Ref: models.EntityRoles},
		},
	},
	{
		Entity: models.EntitySettings,
		Table:  "settings",
		Fields: []Field{
			{Local: "key", Remote: "key"},
			{Local: "value", Remote: "value", JSON: true},
		},
	},
	{
		Entity: models.EntityActivityLog,
		Table:  "activity_log",
		Fields: []Field{
			{Local: "timestamp", Remote: "timestamp"},
			{Local: "userId", Remote: "user_id", Ref: models.EntityUsers},
			{Local: "username", Remote: "username"},
			{Local: "actionType", Remote: "action_type"},
			{Local: "entity", Remote: "entity"},
			{Local: "entityId", Remote: "entity_id"},
			{Local: "details", Remote: "details", JSON: true},
		},
	},
}

var (
	byEntity = map[string]*Schema{}
	byTable  = map[string]*Schema{}
)

func init() {
	for i := range registry {
		s := &registry[i]
		byEntity[s.Entity] = s
		byTable[s.Table] = s
	}
}

// Lookup returns the schema of a local entity.
func Lookup(entity string) (*Schema, bool) {
	s, ok := byEntity[entity]
	return s, ok
}

// LookupTable returns the schema whose remote table is table.
func LookupTable(table string) (*Schema, bool) {
	s, ok := byTable[table]
	return s, ok
}

// RemoteTable returns the remote table of entity, or "" if it is not synced.
func RemoteTable(entity string) string {
	if s, ok := byEntity[entity]; ok {
		return s.Table
	}
	return ""
}

// Tables returns every remote header table in registry order.
func Tables() []string {
	out := make([]string, len(registry))
	for i, s := range registry {
		out[i] = s.Table
	}
	return out
}

func (s *Schema) isLocalOnly(field string) bool {
	for _, f := range s.LocalOnly {
		if f == field {
			return true
		}
	}
	return false
}

func findLocal(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Local == name {
			return f, true
		}
	}
	return Field{}, false
}

func findRemote(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Remote == name {
			return f, true
		}
	}
	return Field{}, false
}

// MissingReferences returns, in sorted order, the remote tables that rows of
// tables point at through foreign keys but that are not in tables
// themselves. A change feed limited to tables drops rows whose references
// are unknown locally, so the list must be empty for such a feed to be
// complete.
func MissingReferences(tables []string) []string {
	watched := make(map[string]bool, len(tables))
	for _, t := range tables {
		watched[t] = true
	}
	missing := map[string]bool{}
	var walk func(fields []Field)
	walk = func(fields []Field) {
		for _, f := range fields {
			if f.Ref != "" {
				if ref, ok := byEntity[f.Ref]; ok && !watched[ref.Table] {
					missing[ref.Table] = true
				}
			}
			walk(f.Elem)
		}
	}
	for _, t := range tables {
		s, ok := byTable[t]
		if !ok {
			continue
		}
		walk(s.Fields)
		if s.Items != nil {
			walk(s.Items.Fields)
		}
	}
	out := make([]string, 0, len(missing))
	for t := range missing {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
