package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quickcourt/internal/domain"
	"quickcourt/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter renders booking reports as xlsx files.
type Exporter struct {
	path         string
	reservations domain.ReservationService
	venues       domain.VenueService
	logger       *zerolog.Logger
}

func NewExporter(path string, reservations domain.ReservationService, venues domain.VenueService, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		path:         path,
		reservations: reservations,
		venues:       venues,
		logger:       logger,
	}
}

// ExportBookingsGrid создает Excel файл с сеткой занятости площадок
func (e *Exporter) ExportBookingsGrid(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if endDate.Before(startDate) {
		return "", fmt.Errorf("invalid date range: %s after %s", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
	}

	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	dailyBookings, err := e.reservations.GetDailyBookings(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %v", err)
	}

	venues, err := e.venues.GetActiveVenues(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting venues: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Bookings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	dateHeaders := e.writeDateHeaders(f, sheetName, startDate, endDate)
	e.writeVenueHeaders(f, sheetName, venues)
	e.writeBookingData(f, sheetName, dailyBookings, venues, dateHeaders)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for i := 'B'; i <= 'Z'; i++ {
		_ = f.SetColWidth(sheetName, string(i), string(i), 20)
	}

	lastCol := getLastColumn(len(dateHeaders) + 1)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("export_%s_to_%s.xlsx",
		startDate.Format(models.DateLayout),
		endDate.Format(models.DateLayout))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeDateHeaders(f *excelize.File, sheetName string, startDate, endDate time.Time) map[string]int {
	col := 2
	currentDate := startDate
	dateHeaders := make(map[string]int)

	for !currentDate.After(endDate) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, currentDate.Format("02.01"))
		dateHeaders[currentDate.Format(models.DateLayout)] = col

		style, _ := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		col++
		currentDate = currentDate.AddDate(0, 0, 1)
	}
	return dateHeaders
}

func (e *Exporter) writeVenueHeaders(f *excelize.File, sheetName string, venues []*models.Venue) {
	row := 3
	for _, venue := range venues {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, venue.Name)

		style, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
			Font: &excelize.Font{Bold: true},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		row++
	}
}

func (e *Exporter) writeBookingData(
	f *excelize.File, sheetName string,
	dailyBookings map[string][]*models.Booking,
	venues []*models.Venue,
	dateHeaders map[string]int,
) {
	totalSlots := len(models.DailySlots)

	for dateKey, bookings := range dailyBookings {
		col, exists := dateHeaders[dateKey]
		if !exists {
			continue
		}

		bookingsByVenue := make(map[int64][]*models.Booking)
		for _, booking := range bookings {
			bookingsByVenue[booking.VenueID] = append(bookingsByVenue[booking.VenueID], booking)
		}

		row := 3
		for _, venue := range venues {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			venueBookings := activeBookings(bookingsByVenue[venue.ID])

			bookedSlots := 0
			for _, booking := range venueBookings {
				bookedSlots += len(booking.Slots)
			}

			var cellValue string
			if len(venueBookings) > 0 {
				for _, booking := range venueBookings {
					cellValue += fmt.Sprintf("%s %s %s\n",
						booking.Ref, booking.UserName, strings.Join(booking.Slots, ","))
					if booking.Notes != "" {
						cellValue += fmt.Sprintf("   %s\n", booking.Notes)
					}
				}
				cellValue += fmt.Sprintf("\nBooked: %d/%d", bookedSlots, totalSlots)
			} else {
				cellValue = fmt.Sprintf("Free\n\nAvailable: %d/%d", totalSlots, totalSlots)
			}

			_ = f.SetCellValue(sheetName, cell, cellValue)

			styleID, err := e.cellStyle(f, venueBookings, bookedSlots, totalSlots)
			if err == nil {
				_ = f.SetCellStyle(sheetName, cell, cell, styleID)
			}
			row++
		}
	}
}

// cellStyle возвращает стиль ячейки по занятости
func (e *Exporter) cellStyle(f *excelize.File, venueBookings []*models.Booking, bookedSlots, totalSlots int) (int, error) {
	fill := "#FFFFFF"
	switch {
	case len(venueBookings) == 0:
		// без заливки
	case bookedSlots >= totalSlots:
		fill = "#FFC7CE"
	default:
		fill = "#C6EFCE"
	}

	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}

func activeBookings(bookings []*models.Booking) []*models.Booking {
	var active []*models.Booking
	for _, booking := range bookings {
		if booking.Status != models.StatusCancelled {
			active = append(active, booking)
		}
	}
	return active
}

// getLastColumn возвращает последнюю колонку для объединения ячеек
func getLastColumn(colCount int) string {
	if colCount <= 26 {
		return string(rune('A' + colCount - 1))
	}

	firstChar := string(rune('A' + (colCount-1)/26 - 1))
	secondChar := string(rune('A' + (colCount-1)%26))
	return firstChar + secondChar
}

// ExportBookingsList создает плоский список заявок за период
func (e *Exporter) ExportBookingsList(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	dailyBookings, err := e.reservations.GetDailyBookings(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "List"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Ref", "Date", "Venue", "Slots", "Sport", "User", "Phone",
		"Players", "Total", "Fee", "Final", "Status", "Payment",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeaderCell, headerStyle)

	row := 2
	currentDate := startDate
	for !currentDate.After(endDate) {
		dateKey := currentDate.Format(models.DateLayout)
		for _, booking := range dailyBookings[dateKey] {
			values := []interface{}{
				booking.Ref,
				dateKey,
				booking.VenueName,
				strings.Join(booking.Slots, ", "),
				booking.Sport,
				booking.UserName,
				booking.UserPhone,
				booking.PlayerCount,
				booking.TotalAmount,
				booking.PlatformFee,
				booking.FinalAmount,
				booking.Status,
				booking.PaymentStatus,
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				_ = f.SetCellValue(sheetName, cell, v)
			}
			row++
		}
		currentDate = currentDate.AddDate(0, 0, 1)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "C", "C", 25)
	_ = f.SetColWidth(sheetName, "D", "D", 25)
	_ = f.SetColWidth(sheetName, "F", "F", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		startDate.Format(models.DateLayout),
		endDate.Format(models.DateLayout))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}
