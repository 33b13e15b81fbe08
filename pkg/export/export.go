// Package export renders weighings as spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"weighbot/models"
)

const (
	weighingsSheet = "Weighings"
	summarySheet   = "Trucks"
)

var weighingHeaders = []string{
	"Дата", "Машина", "Водитель", "Клиент",
	"Вес, кг", "Предыдущий, кг", "Разница, кг",
	"Ввод", "Метод", "Фото",
}

// WeighingsXLSX returns a workbook with one row per weighing, dates in loc,
// plus a per-truck summary sheet.
func WeighingsXLSX(items []models.Weighing, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", weighingsSheet); err != nil {
		return nil, err
	}
	for i, h := range weighingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(weighingsSheet, cell, h)
	}

	row := 2
	for _, w := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(weighingsSheet, cell, v)
		}
		input := "фото"
		if w.ManualInput {
			input = "вручную"
		}
		write(1, w.CreatedAt.In(loc).Format("2006-01-02 15:04"))
		write(2, w.TruckNumber)
		write(3, w.DriverName)
		write(4, w.ClientName)
		write(5, w.CurrentWeight)
		write(6, w.PreviousWeight)
		write(7, w.WeightDifference)
		write(8, input)
		write(9, w.OCRMethod)
		write(10, w.PhotoPath)
		row++
	}
	_ = f.SetColWidth(weighingsSheet, "A", "A", 18)
	_ = f.SetColWidth(weighingsSheet, "B", "D", 22)
	_ = f.SetColWidth(weighingsSheet, "E", "G", 14)
	_ = f.SetColWidth(weighingsSheet, "I", "J", 36)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	for i, h := range []string{"Машина", "Взвешиваний", "Последний вес, кг", "Сумма разниц, кг"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, cell, h)
	}
	for i, s := range Summarize(items) {
		r := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", r), s.TruckNumber)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", r), s.Count)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", r), s.LastWeight)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", r), s.TotalDifference)
	}
	_ = f.SetColWidth(summarySheet, "A", "D", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// TruckSummary aggregates the weighings of one truck.
type TruckSummary struct {
	TruckNumber     string  `json:"truck_number"`
	Count           int     `json:"count"`
	LastWeight      float64 `json:"last_weight"`
	TotalDifference float64 `json:"total_difference"`
}

// Summarize groups items by truck in order of first appearance. items are
// expected newest first, so LastWeight is taken from the first row of a truck.
func Summarize(items []models.Weighing) []TruckSummary {
	idx := map[string]int{}
	var out []TruckSummary
	for _, w := range items {
		i, ok := idx[w.TruckNumber]
		if !ok {
			i = len(out)
			idx[w.TruckNumber] = i
			out = append(out, TruckSummary{TruckNumber: w.TruckNumber, LastWeight: w.CurrentWeight})
		}
		out[i].Count++
		out[i].TotalDifference += w.WeightDifference
	}
	return out
}
