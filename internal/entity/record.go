package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

// DateLayout is the canonical calendar date rendering.
const DateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Record is the common interface of every normalized record type.
type Record interface {
	Dataset() constants.Dataset
	// Key is the primary identifier used for sorting and lookup.
	Key() string
	KeyFields() map[string]string
	Measure() float64
	RecordDate() *Date
	Source() string
}

// ReturnRecord is a product return: date-bearing, integer quantity.
type ReturnRecord struct {
	ReturnDate     Date   `json:"return_date"`
	TerritoryKey   string `json:"territory_key"`
	ProductKey     string `json:"product_key"`
	ReturnQuantity int64  `json:"return_quantity"`
	SourceFile     string `json:"source_file"`
}

func (r ReturnRecord) Dataset() constants.Dataset { return constants.DatasetReturns }

func (r ReturnRecord) Key() string { return r.TerritoryKey + "/" + r.ProductKey }

func (r ReturnRecord) KeyFields() map[string]string {
	return map[string]string{"territory_key": r.TerritoryKey, "product_key": r.ProductKey}
}

func (r ReturnRecord) Measure() float64 { return float64(r.ReturnQuantity) }

func (r ReturnRecord) RecordDate() *Date {
	d := r.ReturnDate
	return &d
}

func (r ReturnRecord) Source() string { return r.SourceFile }

// PurchaseRecord is a purchase: identifier plus a positive decimal amount.
// The date is optional.
type PurchaseRecord struct {
	PurchaseID   string  `json:"purchase_id"`
	PurchaseDate *Date   `json:"purchase_date,omitempty"`
	TotalAmount  float64 `json:"total_amount"`
	SourceFile   string  `json:"source_file"`
}

func (p PurchaseRecord) Dataset() constants.Dataset { return constants.DatasetPurchases }

func (p PurchaseRecord) Key() string { return p.PurchaseID }

func (p PurchaseRecord) KeyFields() map[string]string {
	return map[string]string{"purchase_id": p.PurchaseID}
}

func (p PurchaseRecord) Measure() float64 { return p.TotalAmount }

func (p PurchaseRecord) RecordDate() *Date { return p.PurchaseDate }

func (p PurchaseRecord) Source() string { return p.SourceFile }

// NormalizedRecord is the schema-independent view of a Record.
type NormalizedRecord struct {
	Date       *string           `json:"date"`
	KeyFields  map[string]string `json:"key_fields"`
	Measure    float64           `json:"measure"`
	SourceFile string            `json:"source_file"`
}

// Normalize converts any Record into its canonical view.
func Normalize(r Record) NormalizedRecord {
	out := NormalizedRecord{
		KeyFields:  r.KeyFields(),
		Measure:    r.Measure(),
		SourceFile: r.Source(),
	}
	if d := r.RecordDate(); d != nil {
		s := d.String()
		out.Date = &s
	}
	return out
}
