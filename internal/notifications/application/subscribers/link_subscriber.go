// Package subscribers turns domain events that carry action tokens into
// outgoing patient notifications.
package subscribers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/eventbus"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
)

// Notification is one message for the delivery collaborator.
type Notification struct {
	Kind      string
	PatientID uuid.UUID
	Email     string
	Phone     string
	Body      string
	Link      string
}

// Sender hands notifications to whatever delivers them.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log. It stands in for delivery
// in local mode.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		"kind", n.Kind,
		"patient_id", n.PatientID,
		"has_email", n.Email != "",
		"has_phone", n.Phone != "",
		"link", n.Link,
	)
	return nil
}

// LinkSubscriber renders action links for booked appointments, waitlist
// invitations and rebooking requests.
type LinkSubscriber struct {
	baseURL string
	sender  Sender
	logger  *slog.Logger
}

// NewLinkSubscriber creates a LinkSubscriber. Links are rooted at baseURL.
func NewLinkSubscriber(baseURL string, sender Sender, logger *slog.Logger) *LinkSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkSubscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  sender,
		logger:  logger,
	}
}

// EventTypes returns the routing keys this subscriber handles.
func (s *LinkSubscriber) EventTypes() []string {
	return []string{
		schedulingDomain.RoutingKeyAppointmentBooked,
		waitlistDomain.RoutingKeyInvitationIssued,
		waitlistDomain.RoutingKeyRebookingRequested,
	}
}

// Handle processes an event. Events without a token are skipped.
func (s *LinkSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var (
		n   Notification
		err error
	)
	switch event.RoutingKey {
	case schedulingDomain.RoutingKeyAppointmentBooked:
		n, err = s.booked(event)
	case waitlistDomain.RoutingKeyInvitationIssued:
		n, err = s.invited(event)
	case waitlistDomain.RoutingKeyRebookingRequested:
		n, err = s.rebooking(event)
	default:
		s.logger.Warn("unknown event type", "routing_key", event.RoutingKey)
		return nil
	}
	if err != nil {
		return err
	}
	if n.Link == "" {
		s.logger.Debug("event carries no action token", "routing_key", event.RoutingKey, "event_id", event.EventID)
		return nil
	}
	return s.sender.Send(ctx, n)
}

func (s *LinkSubscriber) booked(event *eventbus.ConsumedEvent) (Notification, error) {
	var payload schedulingDomain.AppointmentBooked
	if err := event.Decode(&payload); err != nil {
		return Notification{}, err
	}
	return Notification{
		Kind:      "appointment_booked",
		PatientID: payload.PatientID,
		Body:      fmt.Sprintf("Your appointment on %s is booked. Confirm or cancel here:", when(payload.StartsAt)),
		Link:      s.link(payload.ActionToken),
	}, nil
}

func (s *LinkSubscriber) invited(event *eventbus.ConsumedEvent) (Notification, error) {
	var payload waitlistDomain.InvitationIssued
	if err := event.Decode(&payload); err != nil {
		return Notification{}, err
	}
	return Notification{
		Kind:      "waitlist_invitation",
		PatientID: payload.PatientID,
		Email:     payload.Contact.Email,
		Phone:     payload.Contact.Phone,
		Body: fmt.Sprintf("A slot opened on %s. Answer before %s; the first to accept gets it:",
			when(payload.StartsAt), when(payload.ExpiresAt)),
		Link: s.link(payload.ResponseToken),
	}, nil
}

func (s *LinkSubscriber) rebooking(event *eventbus.ConsumedEvent) (Notification, error) {
	var payload waitlistDomain.RebookingRequested
	if err := event.Decode(&payload); err != nil {
		return Notification{}, err
	}
	return Notification{
		Kind:      "rebooking_request",
		PatientID: payload.PatientID,
		Body: fmt.Sprintf("Your appointment needs to move. Pick one of %d new times before %s:",
			len(payload.TimeSlots), when(payload.ExpiresAt)),
		Link: s.link(payload.ResponseToken),
	}, nil
}

func (s *LinkSubscriber) link(token string) string {
	if token == "" {
		return ""
	}
	return s.baseURL + "/t/" + token
}

func when(t time.Time) string {
	return t.UTC().Format("Mon 2 Jan 15:04 MST")
}
