package subscribers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/eventbus"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []Notification
}

func (r *recordingSender) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

var startsAt = time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)

func consumed(t *testing.T, routingKey string, payload any) *eventbus.ConsumedEvent {
	t.Helper()
	event, err := eventbus.NewConsumedEvent(uuid.New(), "test", routingKey, payload, uuid.Nil)
	require.NoError(t, err)
	return event
}

func TestLinkSubscriber_Invitation(t *testing.T) {
	sender := &recordingSender{}
	s := NewLinkSubscriber("https://book.example.com/", sender, nil)
	patientID := uuid.New()

	err := s.Handle(context.Background(), consumed(t, waitlistDomain.RoutingKeyInvitationIssued, map[string]any{
		"patient_id":     patientID,
		"contact":        map[string]string{"name": "Ada", "email": "ada@example.com"},
		"starts_at":      startsAt,
		"expires_at":     startsAt.Add(-46 * time.Hour),
		"response_token": "tok123",
	}))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	n := sender.sent[0]
	assert.Equal(t, "waitlist_invitation", n.Kind)
	assert.Equal(t, patientID, n.PatientID)
	assert.Equal(t, "ada@example.com", n.Email)
	assert.Equal(t, "https://book.example.com/t/tok123", n.Link)
	assert.Contains(t, n.Body, "Wed 21 Oct 09:00 UTC")
}

func TestLinkSubscriber_BookedAndRebooking(t *testing.T) {
	sender := &recordingSender{}
	s := NewLinkSubscriber("http://localhost:8080", sender, nil)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, consumed(t, schedulingDomain.RoutingKeyAppointmentBooked, map[string]any{
		"patient_id":   uuid.New(),
		"starts_at":    startsAt,
		"action_token": "a1",
	})))
	require.NoError(t, s.Handle(ctx, consumed(t, waitlistDomain.RoutingKeyRebookingRequested, map[string]any{
		"patient_id":     uuid.New(),
		"time_slots":     []map[string]any{{"id": uuid.New()}, {"id": uuid.New()}},
		"expires_at":     startsAt,
		"response_token": "r1",
	})))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "http://localhost:8080/t/a1", sender.sent[0].Link)
	assert.Equal(t, "rebooking_request", sender.sent[1].Kind)
	assert.Contains(t, sender.sent[1].Body, "2 new times")
}

func TestLinkSubscriber_SkipsEventsWithoutToken(t *testing.T) {
	sender := &recordingSender{}
	s := NewLinkSubscriber("http://localhost:8080", sender, nil)

	err := s.Handle(context.Background(), consumed(t, schedulingDomain.RoutingKeyAppointmentBooked, map[string]any{
		"patient_id": uuid.New(),
		"starts_at":  startsAt,
	}))
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestLinkSubscriber_RejectsMalformedPayload(t *testing.T) {
	s := NewLinkSubscriber("http://localhost:8080", &recordingSender{}, nil)
	event := consumed(t, waitlistDomain.RoutingKeyInvitationIssued, "not an object")
	assert.Error(t, s.Handle(context.Background(), event))
}

func TestLinkSubscriber_DispatchedThroughBus(t *testing.T) {
	sender := &recordingSender{}
	bus := eventbus.NewInProcessEventBus(nil)
	bus.RegisterConsumer(NewLinkSubscriber("http://localhost:8080", sender, nil))

	event := consumed(t, waitlistDomain.RoutingKeyRebookingRequested, map[string]any{"response_token": "r2"})
	require.NoError(t, bus.PublishConsumedEvent(context.Background(), event))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "http://localhost:8080/t/r2", sender.sent[0].Link)
}
