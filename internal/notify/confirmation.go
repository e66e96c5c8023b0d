package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/example/citaplan/pkg/logging"
)

// ConfirmationDetails carries everything needed to render a booking
// confirmation email for a customer.
type ConfirmationDetails struct {
	CustomerName    string
	CustomerEmail   string
	BusinessName    string
	AppointmentType string
	StartAt         time.Time
	Location        *time.Location // business-local timezone for display
	Rescheduled     bool
}

// Confirmer sends appointment confirmation emails. Send failures are
// reported to the caller but must not fail the booking itself.
type Confirmer struct {
	sender EmailSender
	logger *logging.Logger
}

// NewConfirmer creates a confirmation email service.
func NewConfirmer(sender EmailSender, logger *logging.Logger) *Confirmer {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	return &Confirmer{sender: sender, logger: logger}
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var spanishWeekdays = [...]string{
	"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
}

// formatSpanishDateTime renders a time like "lunes 2 de marzo de 2026 a las 17:00".
func formatSpanishDateTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%s %d de %s de %d a las %02d:%02d",
		spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// SendConfirmation renders and sends the confirmation email. It returns the
// underlying send error so callers can log it, but bookings never fail on it.
func (c *Confirmer) SendConfirmation(ctx context.Context, d ConfirmationDetails) error {
	if d.CustomerEmail == "" {
		return nil
	}

	when := formatSpanishDateTime(d.StartAt, d.Location)

	subject := fmt.Sprintf("Confirmación de tu cita en %s", d.BusinessName)
	if d.Rescheduled {
		subject = fmt.Sprintf("Tu cita en %s fue reagendada", d.BusinessName)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hola %s,\n\n", d.CustomerName)
	if d.Rescheduled {
		fmt.Fprintf(&text, "Tu cita de %s en %s fue reagendada para el %s.\n\n", d.AppointmentType, d.BusinessName, when)
	} else {
		fmt.Fprintf(&text, "Tu cita de %s en %s quedó confirmada para el %s.\n\n", d.AppointmentType, d.BusinessName, when)
	}
	text.WriteString("Si necesitas cambiarla o cancelarla, responde a este correo o escríbenos por WhatsApp.\n\n")
	fmt.Fprintf(&text, "— %s\n", d.BusinessName)

	err := c.sender.Send(ctx, EmailMessage{
		To:      d.CustomerEmail,
		ToName:  d.CustomerName,
		Subject: subject,
		Body:    text.String(),
		HTML:    renderConfirmationHTML(d, when),
	})
	if err != nil {
		c.logger.Error("confirmation email failed", "error", err, "to", d.CustomerEmail)
		return fmt.Errorf("notify: confirmation email: %w", err)
	}
	return nil
}

func renderConfirmationHTML(d ConfirmationDetails, when string) string {
	action := "quedó confirmada"
	if d.Rescheduled {
		action = "fue reagendada"
	}
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	fmt.Fprintf(&b, `<h2 style="color: #2c3e50;">Hola %s,</h2>`, html.EscapeString(d.CustomerName))
	fmt.Fprintf(&b, `<p>Tu cita de <strong>%s</strong> en <strong>%s</strong> %s para el:</p>`,
		html.EscapeString(d.AppointmentType), html.EscapeString(d.BusinessName), action)
	fmt.Fprintf(&b, `<p style="font-size: 18px; color: #27ae60;"><strong>%s</strong></p>`, html.EscapeString(when))
	b.WriteString(`<p>Si necesitas cambiarla o cancelarla, responde a este correo o escríbenos por WhatsApp.</p>`)
	fmt.Fprintf(&b, `<p style="color: #7f8c8d;">— %s</p>`, html.EscapeString(d.BusinessName))
	b.WriteString(`</div>`)
	return b.String()
}
