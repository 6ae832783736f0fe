package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quickcourt/internal/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	s := &SheetsService{
		service:         srv,
		bookingsSheetID: "bookings_tid",
		rowCache:        make(map[int64]int),
	}
	return mux, server, s
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	err := s.TestConnection(ctx)
	if err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {"456"}},
		})
	})
	err := s.WarmUpCache(ctx)
	if err != nil {
		t.Errorf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow(123); !ok || row != 2 {
		t.Errorf("Expected row 2 for ID 123, got %d", row)
	}
}

func TestSheetsService_AppendBooking(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{
				UpdatedRange: "Bookings!A10:Q10",
			},
		})
	})
	booking := &models.Booking{ID: 789, Ref:        "QC000789", Date: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := s.AppendBooking(ctx, booking)
	if err != nil {
		t.Errorf("AppendBooking failed: %v", err)
	}
	if row, _ := s.getCachedRow(789); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}
}

func TestSheetsService_UpsertBooking_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A2:Q2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	booking := &models.Booking{ID: 123, Ref:        "QC000123", Date: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := s.UpsertBooking(ctx, booking)
	if err != nil {
		t.Errorf("UpsertBooking failed: %v", err)
	}
}

func TestSheetsService_UpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!N2:N2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!Q2:Q2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	err := s.UpdateBookingStatus(ctx, 123, models.StatusCancelled)
	if err != nil {
		t.Errorf("UpdateBookingStatus failed: %v", err)
	}
}

func TestSheetsService_GetSheetIdByName(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.Spreadsheet{
			Sheets: []*sheets.Sheet{
				{
					Properties: &sheets.SheetProperties{
						Title:   "Schedule",
						SheetId: 999,
					},
				},
			},
		})
	})
	id, err := s.GetSheetIdByName(ctx, s.bookingsSheetID, "Schedule")
	if err != nil {
		t.Errorf("GetSheetIdByName failed: %v", err)
	}
	if id != 999 {
		t.Errorf("Expected 999, got %d", id)
	}
}

func TestSheetsService_ReplaceBookingsSheet(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:Z:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	bookings := []*models.Booking{{ID: 1, Ref:        "QC000001", UserName: "test", Date: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now()}}
	err := s.ReplaceBookingsSheet(ctx, bookings)
	if err != nil {
		t.Errorf("ReplaceBookingsSheet failed: %v", err)
	}
	if row, _ := s.getCachedRow(1); row != 2 {
		t.Errorf("Expected cached row 2, got %d", row)
	}
}

func TestSheetsService_UpdateScheduleSheet(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.Spreadsheet{
			Sheets: []*sheets.Sheet{
				{
					Properties: &sheets.SheetProperties{
						Title:   "Schedule",
						SheetId: 999,
					},
				},
			},
		})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Schedule!A:Z:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Schedule!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateSpreadsheetResponse{})
	})

	startDate := time.Now()
	endDate := startDate.AddDate(0, 0, 1)
	dailyBookings := map[string][]models.Booking{
		startDate.Format(models.DateLayout): {
			{ID: 1, Ref:        "QC000001", VenueID: 1, UserName: "test", Slots: []string{"10:00"}, Status: models.StatusConfirmed},
		},
	}
	venues := []models.Venue{{ID: 1, Name: "Elite Sports Arena"}}

	err := s.UpdateScheduleSheet(ctx, startDate, endDate, dailyBookings, venues)
	if err != nil {
		t.Errorf("UpdateScheduleSheet failed: %v", err)
	}
}

func TestSheetsService_FindBookingRow_FullScan(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"999"}},
		})
	})
	row, err := s.FindBookingRow(ctx, 999)
	if err != nil {
		t.Errorf("FindBookingRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}
}
