package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"quickcourt/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrRowNotFound is returned when a booking has no row on the sheet yet.
var ErrRowNotFound = errors.New("booking row not found")

// bookingColumns describes the Bookings sheet layout, columns A..Q.
var bookingHeaders = []interface{}{
	"ID", "Ref", "User ID", "User Name", "Phone", "Venue", "Date", "Slots",
	"Sport", "Players", "Total", "Fee", "Final", "Status", "Payment", "Created At", "Updated At",
}

type SheetsService struct {
	service         *sheets.Service
	bookingsSheetID string
	rowCache        map[int64]int
	cacheMu         sync.RWMutex
}

func NewSimpleSheetsService(credentialsFile, bookingsSheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	// Создаем JWT конфигурацию
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:         srv,
		bookingsSheetID: bookingsSheetID,
		rowCache:        make(map[int64]int),
	}

	// Warm up cache in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	// Periodic cache refresh every 1 hour
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			service.WarmUpCache(ctx)
			cancel()
		}
	}()

	return service, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, "Bookings!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, "Bookings!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		var id int64
		switch v := row[0].(type) {
		case float64:
			id = int64(v)
		case string:
			fmt.Sscanf(v, "%d", &id)
		}
		if id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendBooking добавляет новое бронирование
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.bookingsSheetID, "Bookings!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		if row := parseRangeRow(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// parseRangeRow extracts the row number from a range like "Bookings!A10:Q10".
func parseRangeRow(rangeData string) int {
	idx := strings.Index(rangeData, "!")
	if idx < 0 {
		return 0
	}
	var row int
	for _, r := range rangeData[idx+1:] {
		if r >= '0' && r <= '9' {
			row = row*10 + int(r-'0')
		} else if row > 0 {
			break
		}
	}
	return row
}

// UpsertBooking updates an existing booking row or appends a new one if not found.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("Bookings!A%d:Q%d", rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateBookingStatus updates status (and UpdatedAt) for a booking row.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	now := time.Now().Format("2006-01-02 15:04:05")

	statusRange := fmt.Sprintf("Bookings!N%d:N%d", rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("Bookings!Q%d:Q%d", rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{now}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindBookingRow locates row index (1-based) for booking id in column A with cache.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, fmt.Errorf("booking id is required")
	}

	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, "Bookings!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		switch v := row[0].(type) {
		case float64:
			if int64(v) == bookingID {
				rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
				s.setCachedRow(bookingID, rowIdx)
				return rowIdx, nil
			}
		case string:
			// if ID stored as string
			if v == fmt.Sprintf("%d", bookingID) {
				rowIdx := i + 1
				s.setCachedRow(bookingID, rowIdx)
				return rowIdx, nil
			}
		}
	}

	return 0, ErrRowNotFound
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func bookingRowValues(booking *models.Booking) []interface{} {
	return []interface{}{
		booking.ID,
		booking.Ref,
		booking.UserID,
		booking.UserName,
		booking.UserPhone,
		booking.VenueName,
		booking.Date.Format("2006-01-02"),
		strings.Join(booking.Slots, ", "),
		booking.Sport,
		booking.PlayerCount,
		booking.TotalAmount,
		booking.PlatformFee,
		booking.FinalAmount,
		booking.Status,
		booking.PaymentStatus,
		booking.CreatedAt.Format("2006-01-02 15:04:05"),
		booking.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ReplaceBookingsSheet полностью перезаписывает лист с заявками
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	// Очищаем весь лист, заголовки перезаписываются вместе с данными
	_, err := s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, "Bookings!A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %v", err)
	}

	values := [][]interface{}{bookingHeaders}
	for _, booking := range bookings {
		values = append(values, bookingRowValues(booking))
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, "Bookings!A1", valueRange).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %v", err)
	}

	// Re-populate cache
	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	for i, b := range bookings {
		s.rowCache[b.ID] = i + 2 // +2 because data starts at row 2
	}
	s.cacheMu.Unlock()

	return nil
}

// UpdateScheduleSheet перезаписывает лист "Schedule" сеткой занятости:
// строки - площадки, колонки - даты, в ячейке заявки на день.
func (s *SheetsService) UpdateScheduleSheet(ctx context.Context, startDate, endDate time.Time, dailyBookings map[string][]models.Booking, venues []models.Venue) error {
	sheetId, err := s.GetSheetIdByName(ctx, s.bookingsSheetID, "Schedule")
	if err != nil {
		return fmt.Errorf("unable to get sheet ID: %v", err)
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, "Schedule!A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to clear sheet: %v", err)
	}

	days := int(endDate.Sub(startDate).Hours()/24) + 1
	if days <= 0 {
		return fmt.Errorf("invalid date range: startDate %s, endDate %s", startDate, endDate)
	}

	var data [][]interface{}
	var formatRequests []*sheets.Request

	// Заголовок периода (строка 1)
	data = append(data, []interface{}{
		fmt.Sprintf("Period: %s - %s",
			startDate.Format("02.01.2006"),
			endDate.Format("02.01.2006")),
	})

	formatRequests = append(formatRequests, &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetId,
				StartRowIndex:    0,
				EndRowIndex:      1,
				StartColumnIndex: 0,
				EndColumnIndex:   1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					HorizontalAlignment: "CENTER",
					TextFormat: &sheets.TextFormat{
						Bold:     true,
						FontSize: 14,
					},
				},
			},
			Fields: "userEnteredFormat(textFormat,horizontalAlignment)",
		},
	})

	// Пустая строка между заголовком и таблицей
	data = append(data, []interface{}{})

	// Заголовки дат (строка 3)
	headerRow := []interface{}{""}
	currentDate := startDate
	dateCols := 0
	for !currentDate.After(endDate) && dateCols < 100 {
		headerRow = append(headerRow, currentDate.Format("02.01"))
		dateCols++
		currentDate = currentDate.AddDate(0, 0, 1)
	}
	data = append(data, headerRow)

	if len(headerRow) > 1 {
		formatRequests = append(formatRequests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetId,
					StartRowIndex:    2,
					EndRowIndex:      3,
					StartColumnIndex: 1,
					EndColumnIndex:   int64(len(headerRow)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						HorizontalAlignment: "CENTER",
						TextFormat: &sheets.TextFormat{
							Bold: true,
						},
						BackgroundColor: &sheets.Color{
							Red:   0.86,
							Green: 0.92,
							Blue:  0.97,
						},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		})
	}

	totalSlots := len(models.DailySlots)

	for rowIndex, venue := range venues {
		rowData := []interface{}{venue.Name}

		currentDate = startDate
		for colIndex := 0; colIndex < dateCols; colIndex++ {
			dateKey := currentDate.Format(models.DateLayout)

			var venueBookings []models.Booking
			for _, booking := range dailyBookings[dateKey] {
				if booking.VenueID == venue.ID && booking.Status != models.StatusCancelled {
					venueBookings = append(venueBookings, booking)
				}
			}

			cellValue := ""
			var backgroundColor *sheets.Color

			bookedSlots := 0
			for _, booking := range venueBookings {
				bookedSlots += len(booking.Slots)
				cellValue += fmt.Sprintf("[%s] %s %s\n",
					booking.Ref, booking.UserName, strings.Join(booking.Slots, ","))
			}

			if len(venueBookings) > 0 {
				cellValue += fmt.Sprintf("\nBooked: %d/%d", bookedSlots, totalSlots)
				if bookedSlots >= totalSlots {
					// Площадка занята целиком - красный
					backgroundColor = &sheets.Color{Red: 1.0, Green: 0.78, Blue: 0.81}
				} else {
					backgroundColor = &sheets.Color{Red: 0.78, Green: 0.94, Blue: 0.81}
				}
			} else {
				cellValue = fmt.Sprintf("Free\n\nAvailable: %d/%d", totalSlots, totalSlots)
				backgroundColor = nil
			}

			rowData = append(rowData, cellValue)

			cellFormat := &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					VerticalAlignment: "TOP",
					WrapStrategy:      "WRAP",
				},
			}
			if backgroundColor != nil {
				cellFormat.UserEnteredFormat.BackgroundColor = backgroundColor
			} else {
				cellFormat.UserEnteredFormat.BackgroundColor = &sheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0}
			}

			// +3: три строки заголовков над данными
			formatRequests = append(formatRequests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetId,
						StartRowIndex:    int64(rowIndex + 3),
						EndRowIndex:      int64(rowIndex + 4),
						StartColumnIndex: int64(colIndex + 1),
						EndColumnIndex:   int64(colIndex + 2),
					},
					Cell:   cellFormat,
					Fields: "userEnteredFormat(backgroundColor,verticalAlignment,wrapStrategy)",
				},
			})

			currentDate = currentDate.AddDate(0, 0, 1)
		}
		data = append(data, rowData)
	}

	if len(venues) == 0 {
		rowData := []interface{}{"No venues configured"}
		for i := 0; i < dateCols; i++ {
			rowData = append(rowData, "")
		}
		data = append(data, rowData)
	}

	// Форматирование названий площадок
	if len(venues) > 0 {
		formatRequests = append(formatRequests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetId,
					StartRowIndex:    3,
					EndRowIndex:      int64(3 + len(venues)),
					StartColumnIndex: 0,
					EndColumnIndex:   1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold: true,
						},
						BackgroundColor: &sheets.Color{
							Red:   0.89,
							Green: 0.94,
							Blue:  0.85,
						},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat)",
			},
		})
	}

	valueRange := &sheets.ValueRange{
		Values: data,
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, "Schedule!A1", valueRange).
		ValueInputOption("RAW").
		Do()
	if err != nil {
		return fmt.Errorf("unable to update schedule sheet: %v", err)
	}

	if len(formatRequests) > 0 {
		batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: formatRequests,
		}

		_, err = s.service.Spreadsheets.BatchUpdate(s.bookingsSheetID, batchUpdateRequest).Do()
		if err != nil {
			return fmt.Errorf("unable to apply formatting: %v", err)
		}
	}

	return s.adjustColumnWidths(sheetId, dateCols)
}

// adjustColumnWidths настраивает ширину колонок
func (s *SheetsService) adjustColumnWidths(sheetId int64, dateCols int) error {
	if dateCols <= 0 {
		dateCols = 1
	}

	var requests []*sheets.Request

	// Ширина для названий площадок
	requests = append(requests, &sheets.Request{
		UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
			Range: &sheets.DimensionRange{
				SheetId:    sheetId,
				Dimension:  "COLUMNS",
				StartIndex: 0,
				EndIndex:   1,
			},
			Properties: &sheets.DimensionProperties{
				PixelSize: 200,
			},
			Fields: "pixelSize",
		},
	})

	// Ширина для колонок с датами
	for i := 1; i <= dateCols && i < 100; i++ {
		requests = append(requests, &sheets.Request{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetId,
					Dimension:  "COLUMNS",
					StartIndex: int64(i),
					EndIndex:   int64(i + 1),
				},
				Properties: &sheets.DimensionProperties{
					PixelSize: 150,
				},
				Fields: "pixelSize",
			},
		})
	}

	if len(requests) > 0 {
		batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}

		_, err := s.service.Spreadsheets.BatchUpdate(s.bookingsSheetID, batchUpdateRequest).Do()
		if err != nil {
			return fmt.Errorf("unable to adjust column widths: %v", err)
		}
	}

	return nil
}

// GetSheetIdByName возвращает ID листа по его названию
func (s *SheetsService) GetSheetIdByName(ctx context.Context, spreadID, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(spreadID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %v", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}
