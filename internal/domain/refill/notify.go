package refill

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/email"
	"github.com/rxhub/pharmacy/internal/platform/notification"
)

// Task names, also used as the dispatch metrics label.
const (
	taskNotifyPharmacy = "refill.notify_pharmacy"
	taskEmailPharmacy  = "refill.email_pharmacy"
	taskNotifyPatient  = "refill.notify_patient"
	taskEmailPatient   = "refill.email_patient"
)

// notifyPharmacy submits the in-app notification and the email for a new
// request. req is a copy; tasks may run after the caller has returned.
func (s *Service) notifyPharmacy(req RefillRequest, orderNumber string) {
	ref := orderRef(orderNumber, req.OriginalOrderID)

	s.deps.Tasks.Submit(taskNotifyPharmacy, func(ctx context.Context) error {
		name, _ := s.patientName(ctx, req.PatientID)
		n := &notification.Notification{
			RecipientID:   req.PharmacyID,
			RecipientRole: string(auth.RolePharmacy),
			Type:          notification.TypeRefillRequest,
			Priority:      notification.PriorityHigh,
			Title:         "New refill request",
			Message:       fmt.Sprintf("%s requested a refill for order %s", name, ref),
			Data: map[string]string{
				"refillRequestId": req.ID.String(),
				"orderId":         req.OriginalOrderID.String(),
				"orderNumber":     ref,
				"patientName":     name,
			},
			Channels: []notification.Channel{notification.ChannelInApp, notification.ChannelEmail},
		}
		return errors.Wrapf(s.deps.Notifier.Create(ctx, n), "notify pharmacy of refill request %s", req.ID)
	})

	s.deps.Tasks.Submit(taskEmailPharmacy, func(ctx context.Context) error {
		ph, err := s.deps.Pharmacies.GetByID(ctx, req.PharmacyID)
		if err != nil {
			return errors.Wrap(err, "load pharmacy for refill email")
		}
		if ph.Email == "" {
			return errors.Errorf("pharmacy %s has no contact email", ph.ID)
		}
		name, _ := s.patientName(ctx, req.PatientID)
		data := email.RefillRequestedData{
			PharmacyName: ph.Name,
			PatientName:  name,
			OrderNumber:  ref,
			Medications:  medicationLines(req.Medications),
		}
		if req.Notes != nil {
			data.Notes = *req.Notes
		}
		subject, body, err := email.RenderRefillRequested(data)
		if err != nil {
			return err
		}
		id, err := s.deps.Mailer.SendEmail(ctx, ph.Email, subject, body)
		if err != nil {
			return errors.Wrapf(err, "email pharmacy %s", ph.ID)
		}
		s.logger.Debug().Str("refill_request_id", req.ID.String()).Str("message_id", id).Msg("pharmacy emailed")
		return nil
	})
}

// notifyPatient submits the in-app notification and the email for a
// pharmacy decision.
func (s *Service) notifyPatient(req RefillRequest, pharmacyName string) {
	approved := req.Status == StatusApproved
	var message string
	if req.PharmacyResponse != nil && req.PharmacyResponse.Message != nil {
		message = *req.PharmacyResponse.Message
	}
	orderNumber := func(ctx context.Context) string {
		o, err := s.deps.Orders.GetByID(ctx, req.OriginalOrderID)
		if err != nil {
			return orderRef("", req.OriginalOrderID)
		}
		return orderRef(o.OrderNumber, req.OriginalOrderID)
	}

	s.deps.Tasks.Submit(taskNotifyPatient, func(ctx context.Context) error {
		ref := orderNumber(ctx)
		n := &notification.Notification{
			RecipientID:   req.PatientID,
			RecipientRole: string(auth.RolePatient),
			Priority:      notification.PriorityNormal,
			Data: map[string]string{
				"refillRequestId": req.ID.String(),
				"orderId":         req.OriginalOrderID.String(),
				"orderNumber":     ref,
				"pharmacyName":    pharmacyName,
				"status":          string(req.Status),
			},
			Channels: []notification.Channel{notification.ChannelInApp, notification.ChannelEmail},
		}
		if approved {
			n.Type = notification.TypeRefillApproved
			n.Title = "Refill request approved"
			n.Message = fmt.Sprintf("%s approved your refill request for order %s", pharmacyName, ref)
		} else {
			n.Type = notification.TypeRefillRejected
			n.Title = "Refill request rejected"
			n.Message = fmt.Sprintf("%s rejected your refill request for order %s", pharmacyName, ref)
		}
		if message != "" {
			n.Data["message"] = message
		}
		return errors.Wrapf(s.deps.Notifier.Create(ctx, n), "notify patient of refill request %s", req.ID)
	})

	s.deps.Tasks.Submit(taskEmailPatient, func(ctx context.Context) error {
		name, p := s.patientName(ctx, req.PatientID)
		if p == nil || p.Email == "" {
			return errors.Errorf("patient %s has no contact email", req.PatientID)
		}
		subject, body, err := email.RenderRefillResponded(email.RefillRespondedData{
			PatientName:  name,
			PharmacyName: pharmacyName,
			OrderNumber:  orderNumber(ctx),
			Approved:     approved,
			Message:      message,
		})
		if err != nil {
			return err
		}
		id, err := s.deps.Mailer.SendEmail(ctx, p.Email, subject, body)
		if err != nil {
			return errors.Wrapf(err, "email patient %s", p.ID)
		}
		s.logger.Debug().Str("refill_request_id", req.ID.String()).Str("message_id", id).Msg("patient emailed")
		return nil
	})
}
