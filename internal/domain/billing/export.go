package billing

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Bill"

var exportHeader = []string{"#", "Description", "Quantity", "Rate", "Amount"}

// WriteWorkbook renders b as a single-sheet workbook: a header block, one row
// per line item and the totals beneath.
func WriteWorkbook(w io.Writer, b *Bill, patientName string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	set := func(cell string, v interface{}) {
		if err == nil {
			err = f.SetCellValue(exportSheet, cell, v)
		}
	}

	set("A1", "Bill")
	set("B1", b.ID.String())
	set("A2", "Patient")
	if patientName != "" {
		set("B2", patientName)
	} else {
		set("B2", b.PatientID.String())
	}
	set("A3", "Date")
	set("B3", b.CreatedAt.Format("2006-01-02 15:04"))
	set("A4", "Status")
	set("B4", string(b.PaymentStatus))

	const firstRow = 6
	for i, h := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, firstRow)
		set(cell, h)
	}
	if err == nil {
		err = f.SetCellStyle(exportSheet, "A6", "E6", headerStyle)
	}

	row := firstRow + 1
	for i, item := range b.LineItems {
		set(fmt.Sprintf("A%d", row), i+1)
		set(fmt.Sprintf("B%d", row), item.Description)
		set(fmt.Sprintf("C%d", row), item.Quantity.String())
		set(fmt.Sprintf("D%d", row), item.Rate.StringFixed(2))
		set(fmt.Sprintf("E%d", row), item.Amount().StringFixed(2))
		row++
	}

	row++
	summary := []struct {
		label string
		value string
	}{
		{"Subtotal", b.Subtotal.StringFixed(2)},
		{fmt.Sprintf("Tax (%s%%)", b.TaxRatePercent), b.TaxAmount.StringFixed(2)},
		{fmt.Sprintf("Discount (%s%%)", b.DiscountPercent), "-" + b.DiscountAmount.StringFixed(2)},
		{"Total", b.Total.StringFixed(2)},
	}
	for _, s := range summary {
		set(fmt.Sprintf("D%d", row), s.label)
		set(fmt.Sprintf("E%d", row), s.value)
		row++
	}
	if err != nil {
		return fmt.Errorf("write cells: %w", err)
	}

	if err := f.SetColWidth(exportSheet, "B", "B", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
