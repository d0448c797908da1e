package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"schedfy/internal/domain"
	"schedfy/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

// ExcelExporter renders an entity's schedule for a period as an XLSX
// workbook, one row per booking plus a per-day load summary sheet.
type ExcelExporter struct {
	repo   domain.Repository
	loc    *time.Location
	logger *zerolog.Logger
}

func NewExcelExporter(repo domain.Repository, loc *time.Location, logger *zerolog.Logger) *ExcelExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &ExcelExporter{repo: repo, loc: loc, logger: logger}
}

// WriteSchedule builds the workbook for [from, to] (inclusive local dates)
// and writes it to w.
func (e *ExcelExporter) WriteSchedule(ctx context.Context, w io.Writer, entityID int64, from, to string) error {
	start, err := time.ParseInLocation("2006-01-02", from, e.loc)
	if err != nil {
		return fmt.Errorf("invalid from date: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", to, e.loc)
	if err != nil {
		return fmt.Errorf("invalid to date: %w", err)
	}
	end = end.AddDate(0, 0, 1)

	bookings, err := e.repo.GetBookingsBetween(ctx, entityID, start, end)
	if err != nil {
		return fmt.Errorf("failed to load bookings: %w", err)
	}

	f, err := e.buildWorkbook(bookings, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	e.logger.Info().Int("bookings", len(bookings)).Str("from", from).Str("to", to).Msg("schedule exported")
	return nil
}

func (e *ExcelExporter) buildWorkbook(bookings []models.Booking, from, to string) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s", from, to))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheetName, "A1", "H1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Date", "Start", "End", "Service", "Client", "Phone", "Status", "Price"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	row := 3
	for i := range bookings {
		b := &bookings[i]
		local := b.StartTime.In(e.loc)
		values := []any{
			local.Format("2006-01-02"),
			local.Format("15:04"),
			b.EndTime.In(e.loc).Format("15:04"),
			b.ServiceName,
			b.ClientName,
			b.ClientPhone,
			b.Status,
			b.Price.String(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "D", "E", 22)
	_ = f.SetColWidth(sheetName, "F", "H", 16)

	e.addLoadSheet(f, bookings)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// addLoadSheet appends a per-day count of active bookings.
func (e *ExcelExporter) addLoadSheet(f *excelize.File, bookings []models.Booking) {
	const loadSheet = "Daily load"
	if _, err := f.NewSheet(loadSheet); err != nil {
		return
	}

	counts := make(map[string]int)
	var days []string
	for i := range bookings {
		if !bookings[i].Occupies() {
			continue
		}
		day := bookings[i].StartTime.In(e.loc).Format("2006-01-02")
		if _, seen := counts[day]; !seen {
			days = append(days, day)
		}
		counts[day]++
	}

	_ = f.SetCellValue(loadSheet, "A1", "Date")
	_ = f.SetCellValue(loadSheet, "B1", "Active bookings")
	row := 2
	for _, day := range days {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(loadSheet, cellA, day)
		_ = f.SetCellValue(loadSheet, cellB, counts[day])
		row++
	}
	_ = f.SetColWidth(loadSheet, "A", "B", 16)
}
