package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
)

// AppointmentSubject serves appointment_attendance tokens.
type AppointmentSubject struct {
	appointments schedulingDomain.AppointmentRepository
	confirm      *schedulingCommands.ConfirmAttendanceHandler
	cancel       *schedulingCommands.CancelAppointmentHandler
}

// NewAppointmentSubject creates an AppointmentSubject.
func NewAppointmentSubject(
	appointments schedulingDomain.AppointmentRepository,
	confirm *schedulingCommands.ConfirmAttendanceHandler,
	cancel *schedulingCommands.CancelAppointmentHandler,
) *AppointmentSubject {
	return &AppointmentSubject{appointments: appointments, confirm: confirm, cancel: cancel}
}

func (s *AppointmentSubject) Status(ctx context.Context, id uuid.UUID) (string, error) {
	appointment, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return string(appointment.Status()), nil
}

func (s *AppointmentSubject) Perform(ctx context.Context, id uuid.UUID, action domain.Action, input ActionInput) (*domain.ActionResult, error) {
	switch action {
	case domain.ActionConfirmPresence:
		res, err := s.confirm.Handle(ctx, schedulingCommands.ConfirmAttendanceCommand{AppointmentID: id})
		if err != nil {
			return nil, err
		}
		if res.AlreadyConfirmed {
			return &domain.ActionResult{Success: true, Outcome: "already_confirmed", Message: "Your presence was already confirmed."}, nil
		}
		return &domain.ActionResult{Success: true, Outcome: "confirmed", Message: "Thanks, your presence is confirmed."}, nil
	case domain.ActionCancel:
		appointment, err := s.appointments.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if appointment.Status() == schedulingDomain.StatusCancelled {
			return &domain.ActionResult{Success: true, Outcome: "already_cancelled", Message: "Your appointment was already cancelled."}, nil
		}
		patientID := appointment.PatientID()
		res, err := s.cancel.Handle(ctx, schedulingCommands.CancelAppointmentCommand{
			AppointmentID: id,
			Reason:        input.Reason,
			PatientID:     &patientID,
		})
		if err != nil {
			return nil, err
		}
		msg := "Your appointment is cancelled."
		if res.Evaluation.Late && res.Evaluation.FeeCents > 0 {
			msg = fmt.Sprintf("Your appointment is cancelled. A late cancellation fee of %.2f applies.", float64(res.Evaluation.FeeCents)/100)
		}
		return &domain.ActionResult{Success: true, Outcome: "cancelled", Message: msg}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrActionNotAllowed, action)
}

// InvitationSubject serves invitation_response tokens.
type InvitationSubject struct {
	offers  waitlistDomain.SlotOfferRepository
	accept  *waitlistCommands.AcceptInvitationHandler
	decline *waitlistCommands.DeclineInvitationHandler
}

// NewInvitationSubject creates an InvitationSubject.
func NewInvitationSubject(
	offers waitlistDomain.SlotOfferRepository,
	accept *waitlistCommands.AcceptInvitationHandler,
	decline *waitlistCommands.DeclineInvitationHandler,
) *InvitationSubject {
	return &InvitationSubject{offers: offers, accept: accept, decline: decline}
}

// Status reports the invitation status, or the offer's when the offer
// closed before the invitation was answered.
func (s *InvitationSubject) Status(ctx context.Context, id uuid.UUID) (string, error) {
	offer, err := s.offers.FindByInvitationID(ctx, id)
	if err != nil {
		return "", err
	}
	inv, err := offer.Invitation(id)
	if err != nil {
		return "", err
	}
	if inv.Status() == waitlistDomain.InvitationPending && !offer.Status().IsHolding() {
		return string(offer.Status()), nil
	}
	return string(inv.Status()), nil
}

func (s *InvitationSubject) Perform(ctx context.Context, id uuid.UUID, action domain.Action, _ ActionInput) (*domain.ActionResult, error) {
	var (
		res *waitlistCommands.InvitationResult
		err error
	)
	switch action {
	case domain.ActionAccept:
		res, err = s.accept.Handle(ctx, waitlistCommands.AcceptInvitationCommand{InvitationID: id})
	case domain.ActionDecline:
		res, err = s.decline.Handle(ctx, waitlistCommands.DeclineInvitationCommand{InvitationID: id})
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotAllowed, action)
	}
	if err != nil {
		return nil, err
	}
	return outcomeResult(res.Outcome, res.AppointmentID), nil
}

// RebookingSubject serves rebooking_response tokens.
type RebookingSubject struct {
	requests waitlistDomain.RebookingRequestRepository
	respond  *waitlistCommands.RespondRebookingHandler
}

// NewRebookingSubject creates a RebookingSubject.
func NewRebookingSubject(requests waitlistDomain.RebookingRequestRepository, respond *waitlistCommands.RespondRebookingHandler) *RebookingSubject {
	return &RebookingSubject{requests: requests, respond: respond}
}

func (s *RebookingSubject) Status(ctx context.Context, id uuid.UUID) (string, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return string(request.Status()), nil
}

func (s *RebookingSubject) Perform(ctx context.Context, id uuid.UUID, action domain.Action, input ActionInput) (*domain.ActionResult, error) {
	var response waitlistCommands.RebookingResponse
	switch action {
	case domain.ActionAccept:
		response = waitlistCommands.ResponseAccept
	case domain.ActionDecline:
		response = waitlistCommands.ResponseDecline
	case domain.ActionRequestCallback:
		response = waitlistCommands.ResponseRequestCallback
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotAllowed, action)
	}
	res, err := s.respond.Handle(ctx, waitlistCommands.RespondRebookingCommand{
		RequestID:      id,
		Response:       response,
		SelectedSlotID: input.SelectedSlotID,
		Notes:          input.Notes,
	})
	if err != nil {
		return nil, err
	}
	return outcomeResult(res.Outcome, res.AppointmentID), nil
}

func outcomeResult(o waitlistDomain.Outcome, appointmentID *uuid.UUID) *domain.ActionResult {
	return &domain.ActionResult{
		Success:       o.Succeeded(),
		Outcome:       string(o),
		Message:       o.Message(),
		AppointmentID: appointmentID,
	}
}
