package email

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRefillRequested(t *testing.T) {
	subject, body, err := RenderRefillRequested(RefillRequestedData{
		PharmacyName: "Main Street Pharmacy",
		PatientName:  "Jane Doe",
		OrderNumber:  "ORD-1001",
		Medications: []MedicationLine{
			{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily"},
			{Name: "<script>alert(1)</script>", Dosage: "1", Frequency: "once"},
		},
		Notes: "Running low",
	})
	require.NoError(t, err)

	assert.Equal(t, "Refill request for order ORD-1001", subject)
	assert.Contains(t, body, "Jane Doe")
	assert.Contains(t, body, "Amoxicillin")
	assert.Contains(t, body, "Running low")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestRenderRefillRequested_NoMedications(t *testing.T) {
	_, body, err := RenderRefillRequested(RefillRequestedData{PatientName: "Jane", OrderNumber: "ORD-1"})
	require.NoError(t, err)
	assert.Contains(t, body, "No medications were listed")
	assert.NotContains(t, body, "Patient notes")
}

func TestRenderRefillResponded(t *testing.T) {
	subject, body, err := RenderRefillResponded(RefillRespondedData{
		PatientName:  "Jane Doe",
		PharmacyName: "Main Street Pharmacy",
		OrderNumber:  "ORD-1001",
		Approved:     true,
		Message:      "Ready Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your refill request for order ORD-1001 was approved", subject)
	assert.Contains(t, body, "approved your refill request")
	assert.Contains(t, body, "Ready Friday")

	subject, body, err = RenderRefillResponded(RefillRespondedData{OrderNumber: "ORD-2"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(subject, "was rejected"))
	assert.NotContains(t, body, "Message from the pharmacy")
}

func TestMockSender(t *testing.T) {
	m := &MockSender{}
	id, err := m.SendEmail(context.Background(), "rx@example.com", "hi", "<p>x</p>")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	m.ShouldFail = true
	m.FailError = "relay unavailable"
	_, err = m.SendEmail(context.Background(), "rx@example.com", "hi again", "")
	require.EqualError(t, err, "relay unavailable")

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "hi again", calls[1].Subject)
}

func TestLogSender(t *testing.T) {
	id, err := NewLogSender(zerolog.Nop()).SendEmail(context.Background(), "a@b.c", "s", "<p>b</p>")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@localhost>"))
}

func TestNewSMTPSender(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "rx@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "Pharmacy <rx@pharmacy.example>"})
	require.NoError(t, err)
	assert.Equal(t, 587, s.cfg.Port)
	assert.Equal(t, "pharmacy.example", s.domain)
}

func TestSMTPSender_RejectsEmptyRecipient(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "rx@example.com"})
	require.NoError(t, err)
	_, err = s.SendEmail(context.Background(), "", "s", "b")
	assert.Error(t, err)
}
