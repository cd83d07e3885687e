package report

import (
	"context"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"attendguard/internal/attendance"
)

const (
	sheetName   = "Attendance"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Summary is the per-identity aggregate for one day.
type Summary struct {
	Date   string
	Totals []attendance.DailyTotal
}

// Empty reports whether the day has no records.
func (s Summary) Empty() bool { return len(s.Totals) == 0 }

// Filename is the attachment name for the workbook.
func (s Summary) Filename() string { return fmt.Sprintf("daily_report_%s.xlsx", s.Date) }

// Build aggregates the records of day.
func Build(ctx context.Context, store attendance.Store, day string) (Summary, error) {
	recs, err := store.List(ctx, attendance.Filter{Date: day})
	if err != nil {
		return Summary{}, fmt.Errorf("load records for %s: %w", day, err)
	}
	return Summary{Date: day, Totals: attendance.Totals(recs)}, nil
}

// Workbook renders the summary as an xlsx file.
func Workbook(s Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	header := []any{"employee_id", "name", "department", "total_hours", "logins", "logouts"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, t := range s.Totals {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{t.IdentityID, t.Name, t.Department, math.Round(t.Hours*100) / 100, t.Logins, t.Logouts}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
