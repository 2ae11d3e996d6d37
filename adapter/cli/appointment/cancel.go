package appointment

import (
	"fmt"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

var (
	cancelReason  string
	cancelPatient string
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [appointment-id]",
	Short: "Cancel an appointment",
	Long: `Cancel an appointment. A cancellation inside the notice window is
flagged late and the fee schedule applies. When enough notice remains the
freed slot is offered to the waitlist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "appointment")
		if err != nil {
			return err
		}
		patientID, err := optionalID(cancelPatient, "patient")
		if err != nil {
			return err
		}

		result, err := app.CancelAppointmentHandler.Handle(cmd.Context(), schedulingCommands.CancelAppointmentCommand{
			AppointmentID: id,
			Reason:        cancelReason,
			PatientID:     patientID,
			ActorID:       app.ActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel appointment: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Appointment cancelled: %s\n", result.AppointmentID)
		if result.Evaluation.Late {
			fmt.Fprintf(out, "  late cancellation, fee: %s\n", cents(result.Evaluation.FeeCents))
		}
		if result.OfferOpened {
			fmt.Fprintf(out, "  slot offered to the waitlist: %s\n", result.OfferID)
		}
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "cancellation reason")
	cancelCmd.Flags().StringVar(&cancelPatient, "patient", "", "cancel as this patient (checks ownership)")
}

func cents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
