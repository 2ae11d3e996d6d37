package rebooking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	"github.com/spf13/cobra"
)

// Cmd is the rebooking command group
var Cmd = &cobra.Command{
	Use:   "rebooking",
	Short: "Ask patients to pick a new time",
}

var (
	createOwner    string
	createPatient  string
	createService  string
	createOriginal string
	createSlots    []string
	createExpires  time.Duration
	createNotes    string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Propose new times for a displaced appointment",
	Long: `Propose one or more new times to a patient. The patient answers through
the link in the notification: accept one time, decline, or ask for a call.

Examples:
  chiroflow rebooking create --owner 5f0c... --patient 9b2d... --service 7a1e... \
    --slot 2026-10-27T09:00:00Z --slot 2026-10-28T14:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		command := waitlistCommands.CreateRebookingRequestCommand{
			Notes:   createNotes,
			ActorID: app.ActorID,
		}
		if command.OwnerID, err = uuid.Parse(createOwner); err != nil {
			return fmt.Errorf("invalid owner ID: %w", err)
		}
		if command.PatientID, err = uuid.Parse(createPatient); err != nil {
			return fmt.Errorf("invalid patient ID: %w", err)
		}
		if command.ServiceTypeID, err = uuid.Parse(createService); err != nil {
			return fmt.Errorf("invalid service type ID: %w", err)
		}
		if createOriginal != "" {
			id, err := uuid.Parse(createOriginal)
			if err != nil {
				return fmt.Errorf("invalid appointment ID: %w", err)
			}
			command.OriginalAppointmentID = &id
		}
		for _, raw := range createSlots {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("invalid --slot %q (use RFC 3339): %w", raw, err)
			}
			command.StartsAt = append(command.StartsAt, t)
		}
		if createExpires > 0 {
			command.ExpiresAt = app.Now().Add(createExpires)
		}

		result, err := app.CreateRebookingHandler.Handle(cmd.Context(), command)
		if err != nil {
			return fmt.Errorf("failed to create rebooking request: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rebooking request created: %s\n", result.RequestID)
		fmt.Fprintf(out, "  expires: %s\n", result.ExpiresAt.Format(time.RFC3339))
		for _, s := range result.TimeSlots {
			fmt.Fprintf(out, "  slot %s  %s\n", s.ID, s.StartsAt.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "  link: %s/t/%s\n", app.Config.PublicBaseURL, result.ResponseToken)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createOwner, "owner", "", "practitioner ID")
	createCmd.Flags().StringVar(&createPatient, "patient", "", "patient ID")
	createCmd.Flags().StringVar(&createService, "service", "", "service type ID")
	createCmd.Flags().StringVar(&createOriginal, "appointment", "", "appointment being replaced")
	createCmd.Flags().StringArrayVar(&createSlots, "slot", nil, "proposed start time, RFC 3339 (repeatable)")
	createCmd.Flags().DurationVar(&createExpires, "expires-in", 0, "answer window (default SCHEDULING_REBOOKING_TTL)")
	createCmd.Flags().StringVar(&createNotes, "notes", "", "message for the patient")
	for _, f := range []string{"owner", "patient", "service", "slot"} {
		_ = createCmd.MarkFlagRequired(f)
	}
	Cmd.AddCommand(createCmd)
}
