package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"schedfy/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const bookingsRange = "Bookings"

var errRowNotFound = errors.New("booking row not found")

// SheetsService mirrors bookings into a back-office spreadsheet. Row lookups
// by booking ID go through an in-memory cache refreshed on demand.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	loc           *time.Location
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, loc *time.Location) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		loc:           loc,
		rowCache:      make(map[int64]int),
	}, nil
}

// TestConnection reads one cell to verify credentials and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsRange+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func (s *SheetsService) rowValues(b *models.Booking) []interface{} {
	local := b.StartTime.In(s.loc)
	return []interface{}{
		b.ID,
		b.Reference,
		local.Format("2006-01-02"),
		local.Format("15:04"),
		b.EndTime.In(s.loc).Format("15:04"),
		b.ServiceName,
		b.ClientName,
		b.ClientPhone,
		b.Status,
		b.Price.String(),
		time.Now().Format("2006-01-02 15:04:05"),
	}
}

// UpsertBooking updates the booking's row, appending a new one when the
// booking is not in the sheet yet.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.findRow(ctx, booking.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, booking)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:K%d", bookingsRange, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *SheetsService) appendRow(ctx context.Context, booking *models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsRange+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// UpdateBookingStatus rewrites the status and updated-at cells of a row.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	rowIdx, err := s.findRow(ctx, bookingID)
	if err != nil {
		return err
	}

	statusRange := fmt.Sprintf("%s!I%d:I%d", bookingsRange, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("%s!K%d:K%d", bookingsRange, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{time.Now().Format("2006-01-02 15:04:05")}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// ReplaceBookingsSheet clears and rewrites the whole sheet.
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []models.Booking) error {
	values := [][]interface{}{
		{"ID", "Reference", "Date", "Start", "End", "Service", "Client", "Phone", "Status", "Price", "Updated"},
	}
	for i := range bookings {
		values = append(values, s.rowValues(&bookings[i]))
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, bookingsRange+"!A:K", &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A1:K%d", bookingsRange, len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	// The row layout changed entirely.
	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	for i := range bookings {
		s.rowCache[bookings[i].ID] = i + 2
	}
	s.cacheMu.Unlock()
	return nil
}

// findRow locates the 1-based sheet row holding the booking ID in column A.
func (s *SheetsService) findRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, fmt.Errorf("booking id is required")
	}

	s.cacheMu.RLock()
	row, ok := s.rowCache[bookingID]
	s.cacheMu.RUnlock()
	if ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsRange+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		var id int64
		switch v := cells[0].(type) {
		case float64:
			id = int64(v)
		case string:
			fmt.Sscanf(v, "%d", &id)
		}
		if id == bookingID {
			rowIdx := i + 1
			s.cacheMu.Lock()
			s.rowCache[bookingID] = rowIdx
			s.cacheMu.Unlock()
			return rowIdx, nil
		}
	}

	return 0, errRowNotFound
}
