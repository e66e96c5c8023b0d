package booking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/citaplan/internal/observability/metrics"
	"github.com/example/citaplan/pkg/logging"
)

func (f *fixture) handler(llmOut string) *Handler {
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	return NewHandler(f.orchestrator(llmOut), m, logging.Default())
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func validCreatePayload() map[string]any {
	return map[string]any{
		"nombre":        "Ana García",
		"email":         "ana@example.com",
		"telefono":      "+5215512345678",
		"fechaHoraCita": "2026-03-03T10:00:00Z",
		"tipoDeCitaId":  "consult",
		"negocioId":     "biz-1",
		"crmId":         "crm-42",
	}
}

func TestCreateAppointment_Created(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	rec := postJSON(t, h.CreateAppointment, "/api/citas", validCreatePayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateAppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.LeadID)
	assert.Equal(t, "2026-03-03T10:00:00Z", resp.FechaHoraCita)
	assert.Equal(t, "pending", resp.Estado)
}

func TestCreateAppointment_Conflict(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	rec := postJSON(t, h.CreateAppointment, "/api/citas", validCreatePayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	payload := validCreatePayload()
	payload["email"] = "beto@example.com"
	payload["nombre"] = "Beto"
	rec = postJSON(t, h.CreateAppointment, "/api/citas", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no disponible")
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	for name, mutate := range map[string]func(map[string]any){
		"missing name":     func(p map[string]any) { delete(p, "nombre") },
		"missing email":    func(p map[string]any) { delete(p, "email") },
		"bad email":        func(p map[string]any) { p["email"] = "not-an-email" },
		"missing business": func(p map[string]any) { delete(p, "negocioId") },
		"missing type":     func(p map[string]any) { delete(p, "tipoDeCitaId") },
		"missing date":     func(p map[string]any) { delete(p, "fechaHoraCita") },
	} {
		t.Run(name, func(t *testing.T) {
			payload := validCreatePayload()
			mutate(payload)
			rec := postJSON(t, h.CreateAppointment, "/api/citas", payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAppointment_BadDate(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	payload := validCreatePayload()
	payload["fechaHoraCita"] = "mañana a las 5"
	rec := postJSON(t, h.CreateAppointment, "/api/citas", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "RFC 3339")
}

func TestCreateAppointment_BadJSON(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	req := httptest.NewRequest(http.MethodPost, "/api/citas", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.CreateAppointment(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointment_UnknownBusiness(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	payload := validCreatePayload()
	payload["negocioId"] = "nope"
	rec := postJSON(t, h.CreateAppointment, "/api/citas", payload)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAvailability_Available(t *testing.T) {
	f := newFixture(t)
	h := f.handler(`{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)

	rec := postJSON(t, h.CheckAvailability, "/api/citas/disponibilidad", map[string]any{
		"negocioId":    "biz-1",
		"tipoDeCitaId": "consult",
		"textoFecha":   "¿Tienen lugar el viernes a las 5?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Disponible)
	assert.Equal(t, "2026-03-06T17:00:00Z", resp.FechaISO)
	assert.Contains(t, resp.Mensaje, "disponible")
}

func TestCheckAvailability_Taken(t *testing.T) {
	f := newFixture(t)
	h := f.handler(`{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)

	payload := validCreatePayload()
	payload["fechaHoraCita"] = "2026-03-06T17:00:00Z"
	rec := postJSON(t, h.CreateAppointment, "/api/citas", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.CheckAvailability, "/api/citas/disponibilidad", map[string]any{
		"negocioId":    "biz-1",
		"tipoDeCitaId": "consult",
		"textoFecha":   "¿el viernes a las 5?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Disponible)
	assert.Contains(t, resp.Mensaje, "ocupado")
	assert.Equal(t, "2026-03-06T17:00:00Z", resp.FechaISO)
}

func TestCheckAvailability_NoSignal(t *testing.T) {
	f := newFixture(t)
	h := f.handler("null")

	rec := postJSON(t, h.CheckAvailability, "/api/citas/disponibilidad", map[string]any{
		"negocioId":    "biz-1",
		"tipoDeCitaId": "consult",
		"textoFecha":   "hola, ¿cuánto cuesta la consulta?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Disponible)
	assert.Empty(t, resp.FechaISO)
	assert.Contains(t, resp.Mensaje, "fecha")
}

func TestCheckAvailability_Validation(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	rec := postJSON(t, h.CheckAvailability, "/api/citas/disponibilidad", map[string]any{
		"negocioId": "biz-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
