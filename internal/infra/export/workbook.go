// Package export renders attendance data as spreadsheets.
package export

import (
	"fmt"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Attendance"

var header = []string{"Name", "Phone", "Submitted", "Status", "Started at", "Message ID"}

// DailyReportWorkbook builds a one-sheet workbook with a row per student of the batch.
// A nil report yields every student as not started.
func DailyReportWorkbook(b *batch.Batch, r *report.DailyReport, date string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	title := fmt.Sprintf("%s %s", batchTitle(b, r), date)
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "attendance tracker"}); err != nil {
		return nil, fmt.Errorf("set properties: %w", err)
	}

	for col, h := range header {
		if err := f.SetCellStr(sheetName, cellName(col+1, 1), h); err != nil {
			return nil, err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	end := cellName(len(header), 1)
	_ = f.SetCellStyle(sheetName, "A1", end, bold)
	_ = f.AutoFilter(sheetName, "A1:"+end, nil)

	for i, row := range Rows(b, r) {
		for col, val := range row {
			if err := f.SetCellStr(sheetName, cellName(col+1, i+2), val); err != nil {
				return nil, err
			}
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "F", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Rows returns the data rows of the workbook, in roster order.
func Rows(b *batch.Batch, r *report.DailyReport) [][]string {
	students := b.Students()
	rows := make([][]string, 0, len(students))
	for _, p := range students {
		name := p.Name
		if name == "" {
			name = p.PhoneNumber
		}
		row := []string{name, p.PhoneNumber, "No", "Not started", "", ""}
		if e, ok := r.EntryByPhone(p.PhoneNumber); ok {
			row[3] = "Started"
			row[4] = report.CivilTime(e.StartedAt).Format("15:04")
			if e.IsCompleted {
				row[2], row[3], row[5] = "Yes", "Submitted", e.MessageID
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func batchTitle(b *batch.Batch, r *report.DailyReport) string {
	name := b.BatchName
	if name == "" {
		name = "Batch"
	}
	if r != nil && r.TaskType != "" {
		return fmt.Sprintf("%s %s", name, r.TaskType)
	}
	return name
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
