package appointment

import (
	"fmt"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

var (
	rescheduleDate    string
	rescheduleTime    string
	rescheduleReason  string
	reschedulePatient string
)

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule [appointment-id]",
	Short: "Move an appointment",
	Long: `Move an appointment to a new local date and time. With --patient the
patient's reschedule policy applies; staff moves are only bounded by the
reschedule limit.`,
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
		patientID, err := optionalID(reschedulePatient, "patient")
		if err != nil {
			return err
		}

		result, err := app.RescheduleHandler.Handle(cmd.Context(), schedulingCommands.RescheduleAppointmentCommand{
			AppointmentID: id,
			NewDate:       rescheduleDate,
			NewTime:       rescheduleTime,
			Reason:        rescheduleReason,
			PatientID:     patientID,
			ActorID:       app.ActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to reschedule appointment: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Appointment rescheduled: %s\n", result.AppointmentID)
		fmt.Fprintf(out, "  from: %s\n", result.OldStartsAt.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(out, "  to:   %s\n", result.NewStartsAt.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(out, "  reschedules: %d of %d\n", result.RescheduleCount, result.Evaluation.MaxReschedules)
		return nil
	},
}

func init() {
	rescheduleCmd.Flags().StringVar(&rescheduleDate, "date", "", "new local date (YYYY-MM-DD)")
	rescheduleCmd.Flags().StringVar(&rescheduleTime, "time", "", "new local start time (HH:MM)")
	rescheduleCmd.Flags().StringVarP(&rescheduleReason, "reason", "r", "", "reason for the move")
	rescheduleCmd.Flags().StringVar(&reschedulePatient, "patient", "", "reschedule as this patient")
	_ = rescheduleCmd.MarkFlagRequired("date")
	_ = rescheduleCmd.MarkFlagRequired("time")
}
