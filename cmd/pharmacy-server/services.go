package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxhub/pharmacy/internal/config"
	"github.com/rxhub/pharmacy/internal/domain/order"
	"github.com/rxhub/pharmacy/internal/domain/patient"
	"github.com/rxhub/pharmacy/internal/domain/pharmacy"
	"github.com/rxhub/pharmacy/internal/domain/prescription"
	"github.com/rxhub/pharmacy/internal/domain/refill"
	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/dispatch"
	"github.com/rxhub/pharmacy/internal/platform/email"
	"github.com/rxhub/pharmacy/internal/platform/notification"
)

type services struct {
	pharmacy     *pharmacy.Service
	patient      *patient.Service
	prescription *prescription.Service
	order        *order.Service
	notification *notification.Service
	refill       *refill.Service
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger, tasks dispatch.Submitter, mailer email.Sender) *services {
	pharmacySvc := pharmacy.NewService(pharmacy.NewRepoPG(pool))
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	orderSvc := order.NewService(order.NewRepoPG(pool), pharmacySvc, logger)
	notificationSvc := notification.NewService(notification.NewRepoPG(pool), logger)

	return &services{
		pharmacy:     pharmacySvc,
		patient:      patientSvc,
		prescription: prescription.NewService(prescription.NewRepoPG(pool), pharmacySvc),
		order:        orderSvc,
		notification: notificationSvc,
		refill: refill.NewService(refill.NewRepoPG(pool), refill.Deps{
			Orders:     orderSvc,
			Pharmacies: pharmacySvc,
			Patients:   patientSvc,
			Notifier:   notificationSvc,
			Mailer:     mailer,
			Tasks:      tasks,
		}, refill.Config{QueryTimeout: cfg.RefillQueryTimeout}, logger),
	}
}

func (s *services) registerRoutes(api *echo.Group) {
	pharmacy.NewHandler(s.pharmacy).RegisterRoutes(api)
	patient.NewHandler(s.patient).RegisterRoutes(api)
	prescription.NewHandler(s.prescription).RegisterRoutes(api)
	order.NewHandler(s.order).RegisterRoutes(api)
	refill.NewHandler(s.refill).RegisterRoutes(api)
	notification.NewHandler(s.notification, notificationRecipients(s.pharmacy)).RegisterRoutes(api)
}

type operatorLookup interface {
	ListByOperator(ctx context.Context, userID uuid.UUID) ([]*pharmacy.Pharmacy, error)
}

// notificationRecipients lets pharmacy operators read notifications addressed
// to each pharmacy they operate as well as to themselves.
func notificationRecipients(pharmacies operatorLookup) notification.RecipientsFunc {
	return func(ctx context.Context, actor auth.Actor) ([]uuid.UUID, error) {
		recipients := []uuid.UUID{actor.UserID}
		if !actor.IsPharmacy() {
			return recipients, nil
		}
		list, err := pharmacies.ListByOperator(ctx, actor.UserID)
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				return recipients, nil
			}
			return nil, err
		}
		for _, ph := range list {
			if ph.ID != actor.UserID {
				recipients = append(recipients, ph.ID)
			}
		}
		return recipients, nil
	}
}
