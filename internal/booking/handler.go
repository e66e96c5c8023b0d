package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/citaplan/internal/observability/metrics"
	"github.com/example/citaplan/internal/schedule"
	"github.com/example/citaplan/pkg/logging"
)

// Handler exposes the booking flows over HTTP. Request and response field
// names stay in Spanish to match the CRM frontends that call this API.
type Handler struct {
	orchestrator *Orchestrator
	validate     *validator.Validate
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

// NewHandler creates the booking HTTP handler. m may be nil.
func NewHandler(orchestrator *Orchestrator, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		validate:     validator.New(),
		metrics:      m,
		logger:       logger,
	}
}

// CreateAppointmentRequest is the CRM-facing booking payload.
type CreateAppointmentRequest struct {
	Nombre        string `json:"nombre" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Telefono      string `json:"telefono" validate:"omitempty,min=7"`
	FechaHoraCita string `json:"fechaHoraCita" validate:"required"`
	TipoDeCitaID  string `json:"tipoDeCitaId" validate:"required"`
	NegocioID     string `json:"negocioId" validate:"required"`
	CRMID         string `json:"crmId"`
}

// CreateAppointmentResponse confirms a booked appointment.
type CreateAppointmentResponse struct {
	ID            string `json:"id"`
	LeadID        string `json:"leadId"`
	FechaHoraCita string `json:"fechaHoraCita"`
	Estado        string `json:"estado"`
}

// CreateAppointment handles POST /api/citas.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "faltan campos requeridos: "+err.Error())
		return
	}

	startAt, err := time.Parse(time.RFC3339, req.FechaHoraCita)
	if err != nil {
		writeError(w, http.StatusBadRequest, "fechaHoraCita debe ser RFC 3339")
		return
	}

	result, err := h.orchestrator.Book(r.Context(), BookRequest{
		BusinessID: req.NegocioID,
		TypeID:     req.TipoDeCitaID,
		CRMID:      req.CRMID,
		Name:       req.Nombre,
		Email:      req.Email,
		Phone:      req.Telefono,
		StartAt:    startAt,
		Source:     "crm",
	})
	if err != nil {
		h.writeBookError(w, r, req.NegocioID, err)
		return
	}

	h.metrics.ObserveBooking(req.NegocioID, "created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateAppointmentResponse{
		ID:            result.Appointment.ID,
		LeadID:        result.Lead.ID,
		FechaHoraCita: result.Appointment.StartAt.UTC().Format(time.RFC3339),
		Estado:        string(result.Appointment.Status),
	})
}

func (h *Handler) writeBookError(w http.ResponseWriter, r *http.Request, businessID string, err error) {
	switch {
	case errors.Is(err, schedule.ErrSlotTaken):
		h.metrics.ObserveBooking(businessID, "conflict")
		writeError(w, http.StatusConflict, "ese horario ya está ocupado")
	case errors.Is(err, ErrUnavailable):
		h.metrics.ObserveBooking(businessID, "rejected")
		writeError(w, http.StatusConflict, "horario no disponible: "+UnavailableReason(err))
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, "negocio o tipo de cita no encontrado")
	default:
		h.logger.Error("booking failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "no se pudo agendar la cita")
	}
}

// AvailabilityRequest asks about a slot in natural language.
type AvailabilityRequest struct {
	NegocioID    string `json:"negocioId" validate:"required"`
	TipoDeCitaID string `json:"tipoDeCitaId" validate:"required"`
	TextoFecha   string `json:"textoFecha" validate:"required"`
}

// AvailabilityResponse carries the customer-facing answer.
type AvailabilityResponse struct {
	Disponible bool   `json:"disponible"`
	Mensaje    string `json:"mensaje"`
	FechaISO   string `json:"fechaISO,omitempty"`
}

// CheckAvailability handles POST /api/citas/disponibilidad.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "faltan campos requeridos: "+err.Error())
		return
	}

	reply, err := h.orchestrator.CheckNaturalLanguage(r.Context(), req.NegocioID, req.TipoDeCitaID, req.TextoFecha)
	if err != nil {
		if IsNotFound(err) {
			writeError(w, http.StatusNotFound, "negocio o tipo de cita no encontrado")
			return
		}
		h.logger.Error("availability check failed", "error", err, "business_id", req.NegocioID)
		writeError(w, http.StatusInternalServerError, "no se pudo verificar la disponibilidad")
		return
	}

	h.metrics.ObserveAvailability(req.NegocioID, availabilityOutcome(reply))
	h.metrics.ObserveAvailabilityLatency(req.NegocioID, time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AvailabilityResponse{
		Disponible: reply.Available,
		Mensaje:    reply.Message,
		FechaISO:   reply.DateISO,
	})
}

func availabilityOutcome(reply AvailabilityReply) string {
	switch {
	case reply.Available:
		return "available"
	case reply.DateISO == "":
		return "no_signal"
	}
	return "unavailable"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
