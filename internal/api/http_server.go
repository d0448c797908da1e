package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"schedfy/internal/config"
	"schedfy/internal/database"
	"schedfy/internal/models"
	"schedfy/internal/service"

	"github.com/rs/zerolog"
)

// ScheduleExporter writes an XLSX schedule for a period to w.
type ScheduleExporter interface {
	WriteSchedule(ctx context.Context, w io.Writer, entityID int64, from, to string) error
}

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg          config.APIConfig
	catalog      *service.CatalogService
	availability *service.AvailabilityService
	bookings     *service.BookingService
	insights     *service.InsightsService
	exporter     ScheduleExporter
	auth         *HTTPAuth
	logger       *zerolog.Logger
	server       *http.Server
}

func NewHTTPServer(
	cfg config.APIConfig,
	catalog *service.CatalogService,
	availability *service.AvailabilityService,
	bookings *service.BookingService,
	insights *service.InsightsService,
	exporter ScheduleExporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:          cfg,
		catalog:      catalog,
		availability: availability,
		bookings:     bookings,
		insights:     insights,
		exporter:     exporter,
		logger:       logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/services", srv.handleServices)
	mux.HandleFunc("/api/v1/services/", srv.handleServiceByID)
	mux.HandleFunc("/api/v1/working-hours", srv.handleWorkingHours)
	mux.HandleFunc("/api/v1/drafts/", srv.handleDraft)
	mux.HandleFunc("/api/v1/availability/bulk", srv.handleAvailabilityBulk)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/insights", srv.handleInsights)
	mux.HandleFunc("/api/v1/export/bookings", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the configured root handler, mainly for tests.
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

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listServices(w, r)
	case http.MethodPost:
		s.createService(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listServices(w http.ResponseWriter, r *http.Request) {
	entityID := entityIDFrom(r)
	services, err := s.catalog.ListServices(r.Context(), entityID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list services")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if services == nil {
		services = []models.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) createService(w http.ResponseWriter, r *http.Request) {
	var svc models.Service
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&svc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if svc.EntityID == 0 {
		svc.EntityID = entityIDFrom(r)
	}
	svc.Active = true

	if err := s.catalog.CreateService(r.Context(), &svc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// handleServiceByID routes /api/v1/services/{id}: GET, PUT and DELETE
// (deactivation; services are never hard-deleted).
func (s *HTTPServer) handleServiceByID(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		svc, err := s.catalog.GetService(r.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "service not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case http.MethodPut:
		var svc models.Service
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&svc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		svc.ID = id
		if err := s.catalog.UpdateService(r.Context(), &svc); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "service not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case http.MethodDelete:
		if err := s.catalog.DeactivateService(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "service not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleWorkingHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hours, err := s.catalog.GetWorkingHours(r.Context(), entityIDFrom(r))
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no working hours configured")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, hours)
	case http.MethodPut:
		var hours models.WorkingHours
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&hours); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if hours.EntityID == 0 {
			hours.EntityID = entityIDFrom(r)
		}
		if err := s.catalog.SetWorkingHours(r.Context(), &hours); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, hours)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/availability/"
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "service id is required")
		return
	}
	serviceID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.availability.SlotsForDay(r.Context(), entityIDFrom(r), serviceID, date)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		s.logger.Error().Err(err).Int64("service_id", serviceID).Msg("availability lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service_id": serviceID,
		"date":       date,
		"slots":      slots,
	})
}

func (s *HTTPServer) handleAvailabilityBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		ServiceID int64  `json:"service_id"`
		From      string `json:"from"`
		To        string `json:"to"`
	}

	var body request
	if r.Method == http.MethodGet {
		body.ServiceID, _ = strconv.ParseInt(r.URL.Query().Get("service_id"), 10, 64)
		body.From = strings.TrimSpace(r.URL.Query().Get("from"))
		body.To = strings.TrimSpace(r.URL.Query().Get("to"))
	} else {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if body.ServiceID == 0 {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	byDay, err := s.availability.SlotsForRange(r.Context(), entityIDFrom(r), body.ServiceID, body.From, body.To)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service_id": body.ServiceID,
		"days":       byDay,
	})
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.getBookingByReference(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createBookingRequest struct {
	EntityID    int64  `json:"entity_id"`
	ServiceID   int64  `json:"service_id"`
	Date        string `json:"date"`
	Slot        string `json:"slot"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Comment     string `json:"comment"`
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.EntityID == 0 {
		body.EntityID = entityIDFrom(r)
	}
	if body.ServiceID == 0 || body.Date == "" || body.Slot == "" || strings.TrimSpace(body.ClientName) == "" {
		writeError(w, http.StatusBadRequest, "service_id, date, slot and client_name are required")
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), service.BookingRequest{
		EntityID:    body.EntityID,
		ServiceID:   body.ServiceID,
		Date:        body.Date,
		Slot:        body.Slot,
		ClientName:  strings.TrimSpace(body.ClientName),
		ClientPhone: strings.TrimSpace(body.ClientPhone),
		Comment:     body.Comment,
	})
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) getBookingByReference(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	booking, err := s.bookings.GetBookingByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// handleBookingByID routes /api/v1/bookings/{id}, {id}/status and
// {id}/reschedule.
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.getBooking(w, r, id)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.changeStatus(w, r, id)
	case len(parts) == 2 && parts[1] == "reschedule":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.reschedule(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) changeStatus(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		Status  string `json:"status"`
		Version int64  `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch body.Status {
	case models.StatusConfirmed:
		err = s.bookings.ConfirmBooking(r.Context(), id, body.Version)
	case models.StatusCancelled:
		err = s.bookings.CancelBooking(r.Context(), id, body.Version)
	case models.StatusCompleted:
		err = s.bookings.CompleteBooking(r.Context(), id, body.Version)
	default:
		writeError(w, http.StatusBadRequest, "unsupported status")
		return
	}
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}

func (s *HTTPServer) reschedule(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		Date    string `json:"date"`
		Slot    string `json:"slot"`
		Version int64  `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Date == "" || body.Slot == "" {
		writeError(w, http.StatusBadRequest, "date and slot are required")
		return
	}

	if err := s.bookings.RescheduleBooking(r.Context(), id, body.Version, body.Date, body.Slot); err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

// handleDraft routes /api/v1/drafts/{session}: GET and PUT on the draft
// itself, POST on {session}/submit. Mutations count against the per-session
// rate limit.
func (s *HTTPServer) handleDraft(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/drafts/")
	parts := strings.Split(rest, "/")
	sessionID := strings.TrimSpace(parts[0])
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getDraft(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodPut:
		if !s.allowDraft(w, r, sessionID) {
			return
		}
		s.saveDraft(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "submit" && r.Method == http.MethodPost:
		if !s.allowDraft(w, r, sessionID) {
			return
		}
		s.submitDraft(w, r, sessionID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) allowDraft(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	ok, err := s.bookings.AllowDraftUpdate(r.Context(), sessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("draft rate limit check failed")
		return true
	}
	if !ok {
		writeError(w, http.StatusTooManyRequests, "too many draft updates")
		return false
	}
	return true
}

func (s *HTTPServer) getDraft(w http.ResponseWriter, r *http.Request, sessionID string) {
	draft, err := s.bookings.GetDraft(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) saveDraft(w http.ResponseWriter, r *http.Request, sessionID string) {
	var draft models.BookingDraft
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	draft.SessionID = sessionID
	if draft.EntityID == 0 {
		draft.EntityID = entityIDFrom(r)
	}

	if err := s.bookings.SaveDraft(r.Context(), &draft); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) submitDraft(w http.ResponseWriter, r *http.Request, sessionID string) {
	booking, err := s.bookings.SubmitDraft(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrDraftIncomplete) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	out, err := s.insights.BuildInsights(r.Context(), entityIDFrom(r), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=bookings_%s_%s.xlsx", from, to))
	if err := s.exporter.WriteSchedule(r.Context(), w, entityIDFrom(r), from, to); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}

func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, database.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot is not available")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently")
	case errors.Is(err, database.ErrPastDate),
		errors.Is(err, database.ErrDateTooFar),
		errors.Is(err, database.ErrTooSoon):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Msg("booking operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// entityIDFrom reads the tenant selector, defaulting to the primary entity.
func entityIDFrom(r *http.Request) int64 {
	if raw := r.URL.Query().Get("entity_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 1
}
