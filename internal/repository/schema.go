package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

const (
	TableReturns   = "returns"
	TablePurchases = "purchases"
)

var dateType = map[string]string{dialect.Postgres: "date", dialect.SQLite: "date"}

var (
	returnsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "return_date", Type: field.TypeTime, SchemaType: dateType},
		{Name: "territory_key", Type: field.TypeString, Size: 64},
		{Name: "product_key", Type: field.TypeString, Size: 64},
		{Name: "return_quantity", Type: field.TypeInt64},
		{Name: "source_file", Type: field.TypeString, Size: 255},
		{Name: "batch_id", Type: field.TypeString, Size: 36},
		{Name: "inserted_at", Type: field.TypeTime},
	}
	ReturnsTable = &schema.Table{
		Name:       TableReturns,
		Columns:    returnsColumns,
		PrimaryKey: []*schema.Column{returnsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "returns_batch_id", Columns: []*schema.Column{returnsColumns[6]}},
			{Name: "returns_territory_product", Columns: []*schema.Column{returnsColumns[2], returnsColumns[3]}},
		},
	}

	purchasesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "purchase_id", Type: field.TypeString, Size: 64},
		{Name: "purchase_date", Type: field.TypeTime, Nullable: true, SchemaType: dateType},
		{Name: "total_amount", Type: field.TypeFloat64},
		{Name: "source_file", Type: field.TypeString, Size: 255},
		{Name: "batch_id", Type: field.TypeString, Size: 36},
		{Name: "inserted_at", Type: field.TypeTime},
	}
	PurchasesTable = &schema.Table{
		Name:       TablePurchases,
		Columns:    purchasesColumns,
		PrimaryKey: []*schema.Column{purchasesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "purchases_batch_id", Columns: []*schema.Column{purchasesColumns[5]}},
			{Name: "purchases_purchase_id", Columns: []*schema.Column{purchasesColumns[1]}},
		},
	}

	Tables = []*schema.Table{ReturnsTable, PurchasesTable}
)

// TableFor returns the sink table of a dataset.
func TableFor(d constants.Dataset) (*schema.Table, error) {
	switch d {
	case constants.DatasetReturns:
		return ReturnsTable, nil
	case constants.DatasetPurchases:
		return PurchasesTable, nil
	default:
		return nil, fmt.Errorf("%w: no table for dataset %q", common.ErrInvalidInput, d)
	}
}

// Migrate creates missing tables, columns and indexes. It never drops anything.
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
	}
	return nil
}
