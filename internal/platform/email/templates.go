package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// MedicationLine is one row of the medication table in refill emails.
type MedicationLine struct {
	Name      string
	Dosage    string
	Frequency string
}

// RefillRequestedData fills the email sent to a pharmacy when a patient asks
// for a refill.
type RefillRequestedData struct {
	PharmacyName string
	PatientName  string
	OrderNumber  string
	Medications  []MedicationLine
	Notes        string
}

// RefillRespondedData fills the email sent to a patient once the pharmacy has
// approved or rejected the request.
type RefillRespondedData struct {
	PatientName  string
	PharmacyName string
	OrderNumber  string
	Approved     bool
	Message      string
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
{{template "content" .}}
<p style="color:#888;font-size:12px">This is an automated message from your pharmacy portal.</p>
</body></html>{{end}}`

const refillRequestedHTML = `{{define "content"}}
<h2>New refill request</h2>
<p>Hello {{.PharmacyName}},</p>
<p>{{.PatientName}} has requested a refill of order <strong>{{.OrderNumber}}</strong>.</p>
{{if .Medications}}<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Medication</th><th>Dosage</th><th>Frequency</th></tr>
{{range .Medications}}<tr><td>{{.Name}}</td><td>{{.Dosage}}</td><td>{{.Frequency}}</td></tr>
{{end}}</table>{{else}}<p>No medications were listed.</p>{{end}}
{{with .Notes}}<p>Patient notes: {{.}}</p>{{end}}
<p>Please review the request in your pharmacy dashboard.</p>
{{end}}`

const refillRespondedHTML = `{{define "content"}}
<h2>Your refill request was {{if .Approved}}approved{{else}}rejected{{end}}</h2>
<p>Hello {{.PatientName}},</p>
<p>{{.PharmacyName}} has {{if .Approved}}approved{{else}}rejected{{end}} your refill request for order <strong>{{.OrderNumber}}</strong>.</p>
{{with .Message}}<p>Message from the pharmacy: {{.}}</p>{{end}}
{{end}}`

var (
	refillRequestedTmpl = template.Must(template.Must(template.New("layout").Parse(layout)).Parse(refillRequestedHTML))
	refillRespondedTmpl = template.Must(template.Must(template.New("layout").Parse(layout)).Parse(refillRespondedHTML))
)

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// RenderRefillRequested returns the subject and HTML body for a new refill
// request.
func RenderRefillRequested(d RefillRequestedData) (string, string, error) {
	body, err := render(refillRequestedTmpl, d)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Refill request for order %s", d.OrderNumber), body, nil
}

// RenderRefillResponded returns the subject and HTML body for a refill
// decision.
func RenderRefillResponded(d RefillRespondedData) (string, string, error) {
	body, err := render(refillRespondedTmpl, d)
	if err != nil {
		return "", "", err
	}
	outcome := "rejected"
	if d.Approved {
		outcome = "approved"
	}
	return fmt.Sprintf("Your refill request for order %s was %s", d.OrderNumber, outcome), body, nil
}
