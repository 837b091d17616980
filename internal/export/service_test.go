package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
)

func samplePurchases() []entity.Record {
	d := entity.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	return []entity.Record{
		entity.PurchaseRecord{PurchaseID: "P0003", TotalAmount: 10, SourceFile: "b.txt"},
		entity.PurchaseRecord{PurchaseID: "P0001", PurchaseDate: &d, TotalAmount: 120.5, SourceFile: "a.pdf"},
		entity.PurchaseRecord{PurchaseID: "P0002", TotalAmount: 4.25, SourceFile: "a.pdf"},
	}
}

func TestWriteSummaryCSVSortsByIdentifier(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewService(nil).WriteSummaryCSV(&buf, constants.DatasetPurchases, samplePurchases()))

	want := "Purchase_ID,Purchase_Date,Total_Amount,Source_File\n" +
		"P0001,2024-03-01,120.5,a.pdf\n" +
		"P0002,,4.25,a.pdf\n" +
		"P0003,,10,b.txt\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteSummaryCSVReturns(t *testing.T) {
	recs := []entity.Record{
		entity.ReturnRecord{
			ReturnDate:     entity.NewDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
			TerritoryKey:   "T1",
			ProductKey:     "P9",
			ReturnQuantity: 3,
			SourceFile:     "r.csv",
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewService(nil).WriteSummaryCSV(&buf, constants.DatasetReturns, recs))
	assert.Equal(t, "ReturnDate,TerritoryKey,ProductKey,ReturnQuantity,Source_File\n2024-01-15,T1,P9,3,r.csv\n", buf.String())
}

func TestWriteSummaryCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewService(nil).WriteSummaryCSV(&buf, constants.DatasetPurchases, nil))
	assert.Equal(t, "Purchase_ID,Purchase_Date,Total_Amount,Source_File\n", buf.String())
}

func TestExportRejectsMixedDatasets(t *testing.T) {
	svc := NewService(nil)
	var buf bytes.Buffer
	err := svc.WriteSummaryCSV(&buf, constants.DatasetReturns, samplePurchases())
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = svc.WorkbookXLSX("orders", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestWorkbookXLSX(t *testing.T) {
	b, err := NewService(nil).WorkbookXLSX(constants.DatasetPurchases, samplePurchases())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{recordsSheet, statsSheet}, f.GetSheetList())

	rows, err := f.GetRows(recordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Purchase_ID", "Purchase_Date", "Total_Amount", "Source_File"}, rows[0])
	assert.Equal(t, []string{"P0001", "2024-03-01", "120.5", "a.pdf"}, rows[1])
	assert.Equal(t, "P0003", rows[3][0])

	stats, err := f.GetRows(statsSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Total Count", "3"}, stats[1])
	assert.Equal(t, []string{"Total Measure", "134.75"}, stats[2])
	assert.Equal(t, []string{"a.pdf", "2", "124.75"}, stats[6])
	assert.Equal(t, []string{"b.txt", "1", "10"}, stats[7])
}

func TestSummaryFileName(t *testing.T) {
	assert.Equal(t, "purchase_summary.csv", SummaryFileName(constants.DatasetPurchases))
	assert.Equal(t, "return_summary.csv", SummaryFileName(constants.DatasetReturns))
}
