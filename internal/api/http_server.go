package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quickcourt/internal/config"
	"quickcourt/internal/database"
	"quickcourt/internal/domain"
	"quickcourt/internal/metrics"
	"quickcourt/internal/models"
	"quickcourt/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingExporter renders xlsx reports for the admin endpoints.
type BookingExporter interface {
	ExportBookingsGrid(ctx context.Context, startDate, endDate time.Time) (string, error)
	ExportBookingsList(ctx context.Context, startDate, endDate time.Time) (string, error)
}

// HTTPServer exposes the reservation API over HTTP.
type HTTPServer struct {
	cfg          config.APIConfig
	reservations domain.ReservationService
	venues       domain.VenueService
	exporter     BookingExporter
	syncWorker   domain.SyncWorker
	server       *http.Server
	auth         *HTTPAuth
	validate     *validator.Validate
	logger       *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, reservations domain.ReservationService, venues domain.VenueService, exporter BookingExporter, syncWorker domain.SyncWorker, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:          cfg,
		reservations: reservations,
		venues:       venues,
		exporter:     exporter,
		syncWorker:   syncWorker,
		auth:         NewHTTPAuth(cfg),
		validate:     validator.New(),
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/venues", srv.handleVenues)
	mux.HandleFunc("/api/v1/venues/", srv.handleVenueAvailability)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByRef)
	mux.HandleFunc("/api/v1/admin/bookings/daily", srv.handleDailyBookings)
	mux.HandleFunc("/api/v1/admin/export", srv.handleExport)
	mux.HandleFunc("/api/v1/admin/sheets/resync", srv.handleSheetsResync)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the configured root handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// GET /api/v1/venues?sport=&max_price=
func (s *HTTPServer) handleVenues(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("venues")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sport := strings.TrimSpace(r.URL.Query().Get("sport"))
	maxPriceStr := strings.TrimSpace(r.URL.Query().Get("max_price"))

	var (
		venues []*models.Venue
		err    error
	)
	if sport == "" && maxPriceStr == "" {
		venues, err = s.venues.GetActiveVenues(r.Context())
	} else {
		var maxPrice int64
		if maxPriceStr != "" {
			maxPrice, err = strconv.ParseInt(maxPriceStr, 10, 64)
			if err != nil || maxPrice < 0 {
				writeError(w, http.StatusBadRequest, "invalid max_price")
				return
			}
		}
		venues, err = s.venues.SearchVenues(r.Context(), sport, maxPrice)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

// GET /api/v1/venues/{id}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleVenueAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/venues/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	idStr, tail, found := strings.Cut(rest, "/")
	if !found || tail != "availability" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	venueID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || venueID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid venue id")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.reservations.CheckAvailability(r.Context(), venueID, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"venue_id": venueID,
		"date":     dateStr,
		"slots":    slots,
	})
}

type reserveRequest struct {
	VenueID     int64    `json:"venue_id" validate:"required,gt=0"`
	Date        string   `json:"date" validate:"required"`
	Slots       []string `json:"slots" validate:"required,min=1,dive,required"`
	Sport       string   `json:"sport" validate:"required"`
	PlayerCount int      `json:"player_count" validate:"required,gte=1"`
	UserName    string   `json:"user_name" validate:"required"`
	UserPhone   string   `json:"user_phone"`
	UserEmail   string   `json:"user_email" validate:"omitempty,email"`
	Notes       string   `json:"notes"`
}

// POST /api/v1/bookings | GET /api/v1/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	switch r.Method {
	case http.MethodPost:
		s.handleReserve(w, r)
	case http.MethodGet:
		s.handleUserBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	userID := RequesterID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity header is required")
		return
	}

	var body reserveRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	date, err := time.Parse(models.DateLayout, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	booking, err := s.reservations.Reserve(r.Context(), &domain.ReserveRequest{
		UserID:      userID,
		UserName:    body.UserName,
		UserPhone:   body.UserPhone,
		UserEmail:   body.UserEmail,
		VenueID:     body.VenueID,
		Date:        date,
		Slots:       body.Slots,
		Sport:       body.Sport,
		PlayerCount: body.PlayerCount,
		Notes:       body.Notes,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := RequesterID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity header is required")
		return
	}

	bookings, err := s.reservations.GetUserBookings(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// GET /api/v1/bookings/{ref} | POST /api/v1/bookings/{ref}/cancel
func (s *HTTPServer) handleBookingByRef(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	ref, action, _ := strings.Cut(rest, "/")
	ref = strings.TrimSpace(ref)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "booking ref is required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetBooking(w, r, ref)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, ref)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, ref string) {
	booking, err := s.reservations.GetBooking(r.Context(), ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, ref string) {
	userID := RequesterID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity header is required")
		return
	}

	if err := s.reservations.Cancel(r.Context(), ref, userID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"booking_ref": ref, "status": models.StatusCancelled})
}

// GET /api/v1/admin/bookings/daily?start=&end=
func (s *HTTPServer) handleDailyBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	daily, err := s.reservations.GetDailyBookings(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": daily})
}

// GET /api/v1/admin/export?start=&end=&format=grid|list
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := strings.TrimSpace(r.URL.Query().Get("format"))
	var filePath string
	switch format {
	case "", "grid":
		filePath, err = s.exporter.ExportBookingsGrid(r.Context(), start, end)
	case "list":
		filePath, err = s.exporter.ExportBookingsList(r.Context(), start, end)
	default:
		writeError(w, http.StatusBadRequest, "invalid format; expected grid or list")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, filePath)
}

// handleSheetsResync queues a full rebuild of the reporting spreadsheet.
func (s *HTTPServer) handleSheetsResync(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.syncWorker == nil {
		writeError(w, http.StatusNotImplemented, "sheets sync is not configured")
		return
	}

	if err := s.syncWorker.EnqueueTask(r.Context(), "resync_all", 0, nil, ""); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := strings.TrimSpace(r.URL.Query().Get("start"))
	endStr := strings.TrimSpace(r.URL.Query().Get("end"))
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}

	start, err := time.Parse(models.DateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %s", startStr)
	}
	end, err := time.Parse(models.DateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %s", endStr)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end is before start")
	}
	return start, end, nil
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *service.SlotConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "slots already booked",
			"conflicts": conflict.Slots,
		})
		return
	}

	var payment *service.PaymentError
	if errors.As(err, &payment) {
		writeError(w, http.StatusPaymentRequired, payment.Error())
		return
	}

	var persistence *service.PersistenceError
	if errors.As(err, &persistence) {
		writeError(w, http.StatusServiceUnavailable, "temporary storage failure, retry later")
		return
	}

	switch {
	case errors.Is(err, service.ErrPastDate),
		errors.Is(err, service.ErrDateTooFar),
		errors.Is(err, service.ErrEmptySlots),
		errors.Is(err, service.ErrUnknownSlot),
		errors.Is(err, service.ErrUnsupportedSport),
		errors.Is(err, service.ErrInvalidPlayers):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnknownVenue), errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("unhandled API error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return fmt.Sprintf("invalid field %s: failed %s validation", f.Field(), f.Tag())
	}
	return "invalid request body"
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
