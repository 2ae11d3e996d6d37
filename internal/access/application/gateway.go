package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/access/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = observability.Tracer("chiroflow/access")

// ActionInput carries the optional fields some actions take.
type ActionInput struct {
	Reason         string
	Notes          string
	SelectedSlotID *uuid.UUID
}

// SubjectHandler performs token actions for one subject kind. Perform
// runs inside the gateway's unit of work.
type SubjectHandler interface {
	Status(ctx context.Context, subjectID uuid.UUID) (string, error)
	Perform(ctx context.Context, subjectID uuid.UUID, action domain.Action, input ActionInput) (*domain.ActionResult, error)
}

// Subject identifies what a token acts on.
type Subject struct {
	Kind   domain.SubjectKind `json:"kind"`
	ID     uuid.UUID          `json:"id"`
	Status string             `json:"status"`
}

// Resolution describes a token without using it.
type Resolution struct {
	Subject        Subject              `json:"subject"`
	AllowedActions []domain.Action      `json:"allowed_actions"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ConsumedAction domain.Action        `json:"consumed_action,omitempty"`
	Result         *domain.ActionResult `json:"result,omitempty"`
}

// errClaimLost unwinds the transaction of a caller whose claim lost.
var errClaimLost = errors.New("action token claimed concurrently")

// Gateway resolves and performs token actions.
type Gateway struct {
	tokens   domain.TokenRepository
	subjects map[domain.SubjectKind]SubjectHandler
	uow      sharedApplication.UnitOfWork
	clock    sharedApplication.Clock
	metrics  observability.Metrics
}

// NewGateway creates a Gateway. Register subject handlers with Handle.
func NewGateway(tokens domain.TokenRepository, uow sharedApplication.UnitOfWork, clock sharedApplication.Clock) *Gateway {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &Gateway{
		tokens:   tokens,
		subjects: make(map[domain.SubjectKind]SubjectHandler),
		uow:      uow,
		clock:    clock,
		metrics:  observability.NoopMetrics{},
	}
}

// Handle registers the handler for a subject kind.
func (g *Gateway) Handle(kind domain.SubjectKind, h SubjectHandler) *Gateway {
	g.subjects[kind] = h
	return g
}

// WithMetrics sets the metrics sink.
func (g *Gateway) WithMetrics(m observability.Metrics) *Gateway {
	if m != nil {
		g.metrics = m
	}
	return g
}

// Resolve reports the subject behind a token and what it still allows.
// A used token resolves with its stored result and no further actions.
func (g *Gateway) Resolve(ctx context.Context, raw string) (res *Resolution, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "access.resolve")
	defer func() { observability.EndSpan(span, err) }()

	token, err := g.tokens.FindByHash(ctx, domain.HashToken(raw))
	if err != nil {
		return nil, err
	}
	expired := token.IsExpired(g.clock.Now())
	if !token.IsConsumed() && expired {
		return nil, domain.ErrTokenExpired
	}

	handler, err := g.handler(token.SubjectKind())
	if err != nil {
		return nil, err
	}
	status, err := handler.Status(ctx, token.SubjectID())
	if err != nil {
		return nil, err
	}

	res = &Resolution{
		Subject:        Subject{Kind: token.SubjectKind(), ID: token.SubjectID(), Status: status},
		AllowedActions: token.RemainingActions(),
		ExpiresAt:      token.ExpiresAt(),
	}
	if token.IsConsumed() {
		res.AllowedActions = token.RemainingActions()
		res.ConsumedAction = token.ConsumedAction()
		res.Result = token.Result()
	}
	if expired {
		res.AllowedActions = []domain.Action{}
	}
	return res, nil
}

// Perform runs action for the token's subject. The claim on the token,
// the action and the stored result commit together; a failed action
// leaves the token usable. Repeating the performed action replays the
// stored result, and a caller that loses the claim replays the winner's.
// A follow-up action, such as cancelling after confirming presence,
// claims the token over the prior action.
func (g *Gateway) Perform(ctx context.Context, raw string, action domain.Action, input ActionInput) (result *domain.ActionResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "access.perform",
		attribute.String("action", string(action)))
	outcome := "error"
	defer func() {
		if result != nil {
			outcome = result.Outcome
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		g.metrics.Counter(observability.MetricTokenActions, 1,
			observability.T("action", string(action)), observability.T("outcome", outcome))
		observability.EndSpan(span, err)
	}()

	hash := domain.HashToken(raw)
	now := g.clock.Now()

	token, err := g.tokens.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	replay, err := token.CheckAction(action, now)
	if err != nil {
		return nil, err
	}
	if replay {
		return token.Result(), nil
	}
	handler, err := g.handler(token.SubjectKind())
	if err != nil {
		return nil, err
	}

	result, err = sharedApplication.InUnitOfWork(ctx, g.uow, func(txCtx context.Context) (*domain.ActionResult, error) {
		claimed, err := g.tokens.Claim(txCtx, hash, token.ConsumedAction(), action, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, errClaimLost
		}

		res, err := handler.Perform(txCtx, token.SubjectID(), action, input)
		if err != nil {
			return nil, err
		}
		res.SubjectID = token.SubjectID()
		if err := g.tokens.StoreResult(txCtx, hash, *res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if errors.Is(err, errClaimLost) {
		return g.replayWinner(ctx, hash, action, now)
	}
	return result, err
}

// replayWinner reads the result the concurrent claimant committed.
func (g *Gateway) replayWinner(ctx context.Context, hash string, action domain.Action, now time.Time) (*domain.ActionResult, error) {
	token, err := g.tokens.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	replay, err := token.CheckAction(action, now)
	if err != nil {
		return nil, err
	}
	if !replay {
		return nil, fmt.Errorf("%w: concurrent use is still in flight", domain.ErrTokenConsumed)
	}
	return token.Result(), nil
}

func (g *Gateway) handler(kind domain.SubjectKind) (SubjectHandler, error) {
	h, ok := g.subjects[kind]
	if !ok {
		return nil, fmt.Errorf("no handler for %s tokens", kind)
	}
	return h, nil
}
