// Package domain models single-purpose action tokens: opaque links that
// let a patient act on one appointment, invitation or rebooking request
// without an account.
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// SubjectKind names the aggregate a token acts on.
type SubjectKind string

const (
	SubjectAppointment      SubjectKind = "appointment"
	SubjectInvitation       SubjectKind = "invitation"
	SubjectRebookingRequest SubjectKind = "rebooking_request"
)

// ActionClass fixes which actions a token unlocks.
type ActionClass string

const (
	ClassAppointmentAttendance ActionClass = "appointment_attendance"
	ClassInvitationResponse    ActionClass = "invitation_response"
	ClassRebookingResponse     ActionClass = "rebooking_response"
)

// Action is a verb performed through a token.
type Action string

const (
	ActionConfirmPresence Action = "confirm_presence"
	ActionCancel          Action = "cancel"
	ActionAccept          Action = "accept"
	ActionDecline         Action = "decline"
	ActionRequestCallback Action = "request_callback"
)

var classActions = map[ActionClass][]Action{
	ClassAppointmentAttendance: {ActionConfirmPresence, ActionCancel},
	ClassInvitationResponse:    {ActionAccept, ActionDecline},
	ClassRebookingResponse:     {ActionAccept, ActionDecline, ActionRequestCallback},
}

// classFollowUps lists the actions a class still unlocks once a token
// was used for a given action. A confirmed attendance may still be
// cancelled through the same link.
var classFollowUps = map[ActionClass]map[Action][]Action{
	ClassAppointmentAttendance: {ActionConfirmPresence: {ActionCancel}},
}

var classSubjects = map[ActionClass]SubjectKind{
	ClassAppointmentAttendance: SubjectAppointment,
	ClassInvitationResponse:    SubjectInvitation,
	ClassRebookingResponse:     SubjectRebookingRequest,
}

// ParseActionClass validates a stored or supplied class.
func ParseActionClass(s string) (ActionClass, error) {
	c := ActionClass(s)
	if _, ok := classActions[c]; !ok {
		return "", sharedDomain.NewValidationError("action_class", "unknown action class %q", s)
	}
	return c, nil
}

// AllowedActions returns the actions the class unlocks.
func (c ActionClass) AllowedActions() []Action {
	return append([]Action(nil), classActions[c]...)
}

// Allows reports whether action is permitted for the class.
func (c ActionClass) Allows(action Action) bool {
	for _, a := range classActions[c] {
		if a == action {
			return true
		}
	}
	return false
}

// FollowUps returns the actions still unlocked after prior was performed.
func (c ActionClass) FollowUps(prior Action) []Action {
	return append([]Action{}, classFollowUps[c][prior]...)
}

func (c ActionClass) allowsAfter(prior, action Action) bool {
	for _, a := range classFollowUps[c][prior] {
		if a == action {
			return true
		}
	}
	return false
}

// SubjectKind returns the only subject kind the class may target.
func (c ActionClass) SubjectKind() SubjectKind {
	return classSubjects[c]
}

const rawTokenBytes = 32

// HashToken returns the hex SHA-256 digest stored in place of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ActionResult is what a performed action returned. It is stored on the
// token so that a repeated click replays the same answer.
type ActionResult struct {
	Success       bool       `json:"success"`
	Outcome       string     `json:"outcome"`
	Message       string     `json:"message"`
	SubjectID     uuid.UUID  `json:"subject_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// ActionToken is the stored side of a token. The raw value only exists
// in the return of NewActionToken.
type ActionToken struct {
	hash           string
	subjectKind    SubjectKind
	subjectID      uuid.UUID
	class          ActionClass
	expiresAt      time.Time
	consumedAt     *time.Time
	consumedAction Action
	result         *ActionResult
	createdAt      time.Time
}

// NewActionToken mints a token for one subject. It returns the stored
// token and the raw value to hand to the recipient.
func NewActionToken(kind SubjectKind, subjectID uuid.UUID, class ActionClass, expiresAt, now time.Time) (*ActionToken, string, error) {
	if _, ok := classActions[class]; !ok {
		return nil, "", sharedDomain.NewValidationError("action_class", "unknown action class %q", class)
	}
	if class.SubjectKind() != kind {
		return nil, "", sharedDomain.NewValidationError("subject_kind", "%s tokens cannot target %s", class, kind)
	}
	if subjectID == uuid.Nil {
		return nil, "", sharedDomain.NewValidationError("subject_id", "is required")
	}
	if !expiresAt.After(now) {
		return nil, "", sharedDomain.NewValidationError("expires_at", "must be in the future")
	}

	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("read token entropy: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	return &ActionToken{
		hash:        HashToken(raw),
		subjectKind: kind,
		subjectID:   subjectID,
		class:       class,
		expiresAt:   sharedDomain.NormalizeTime(expiresAt),
		createdAt:   sharedDomain.NormalizeTime(now),
	}, raw, nil
}

// RehydrateActionToken recreates a token from persisted state.
func RehydrateActionToken(
	hash string,
	kind SubjectKind,
	subjectID uuid.UUID,
	class ActionClass,
	expiresAt time.Time,
	consumedAt *time.Time,
	consumedAction Action,
	result *ActionResult,
	createdAt time.Time,
) *ActionToken {
	return &ActionToken{
		hash:           hash,
		subjectKind:    kind,
		subjectID:      subjectID,
		class:          class,
		expiresAt:      expiresAt.UTC(),
		consumedAt:     consumedAt,
		consumedAction: consumedAction,
		result:         result,
		createdAt:      createdAt.UTC(),
	}
}

func (t *ActionToken) Hash() string             { return t.hash }
func (t *ActionToken) SubjectKind() SubjectKind { return t.subjectKind }
func (t *ActionToken) SubjectID() uuid.UUID     { return t.subjectID }
func (t *ActionToken) Class() ActionClass       { return t.class }
func (t *ActionToken) ExpiresAt() time.Time     { return t.expiresAt }
func (t *ActionToken) ConsumedAt() *time.Time   { return t.consumedAt }
func (t *ActionToken) ConsumedAction() Action   { return t.consumedAction }
func (t *ActionToken) Result() *ActionResult    { return t.result }
func (t *ActionToken) CreatedAt() time.Time     { return t.createdAt }
func (t *ActionToken) IsConsumed() bool         { return t.consumedAt != nil }

// IsExpired reports whether expires_at has passed. Comparison is in UTC.
func (t *ActionToken) IsExpired(now time.Time) bool {
	return !now.UTC().Before(t.expiresAt)
}

// RemainingActions returns what the token still unlocks: the whole class
// before first use, the follow-ups of the consumed action after.
func (t *ActionToken) RemainingActions() []Action {
	if !t.IsConsumed() {
		return t.class.AllowedActions()
	}
	return t.class.FollowUps(t.consumedAction)
}

// CheckAction decides whether action may run now. A consumed token
// answered with the same action yields replay=true; a follow-up of the
// consumed action may still run before the token expires.
func (t *ActionToken) CheckAction(action Action, now time.Time) (replay bool, err error) {
	if t.IsConsumed() {
		if t.consumedAction == action && t.result != nil {
			return true, nil
		}
		if !t.class.allowsAfter(t.consumedAction, action) {
			return false, ErrTokenConsumed
		}
	}
	if !t.class.Allows(action) {
		return false, fmt.Errorf("%w: %s does not allow %s", ErrActionNotAllowed, t.class, action)
	}
	if t.IsExpired(now) {
		return false, ErrTokenExpired
	}
	return false, nil
}
