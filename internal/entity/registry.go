// Package entity holds the registry of WMS business entities the pipeline
// can extract and stage. Every stage of the pipeline resolves entities
// through this registry; an unknown entity name is a contract violation.
package entity

import "fmt"

// Entity describes one extractable WMS collection and its staging tables.
type Entity struct {
	// Name is the pipeline-facing identifier (also the landing directory).
	Name string

	// Path is the upstream API path for the collection.
	Path string

	// HistoryTable is the append-only staging table.
	HistoryTable string

	// LatestTable is the last-writer-wins staging table.
	LatestTable string
}

var registry = map[string]Entity{
	"ib_receipts": {
		Name:         "ib_receipts",
		Path:         "/ib/receipts",
		HistoryTable: "stg_ib_receipts_history",
		LatestTable:  "stg_ib_receipts",
	},
	"ob_orders": {
		Name:         "ob_orders",
		Path:         "/ob/orders",
		HistoryTable: "stg_ob_orders_history",
		LatestTable:  "stg_ob_orders",
	},
}

// Lookup resolves an entity by name.
func Lookup(name string) (Entity, error) {
	ent, ok := registry[name]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity %q", name)
	}
	return ent, nil
}

// Names returns all registered entity names in extraction order.
func Names() []string {
	return []string{"ib_receipts", "ob_orders"}
}
