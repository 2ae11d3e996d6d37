package appointment

import (
	"fmt"
	"strings"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingQueries "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/queries"
	"github.com/spf13/cobra"
)

var policyPatient string

var policyCmd = &cobra.Command{
	Use:   "policy [appointment-id]",
	Short: "Check whether a patient may reschedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "appointment")
		if err != nil {
			return err
		}
		patientID, err := parseID(policyPatient, "patient")
		if err != nil {
			return err
		}

		eval, err := app.CanPatientRescheduleQuery.Handle(cmd.Context(), schedulingQueries.CanPatientRescheduleQuery{
			AppointmentID: id,
			PatientID:     patientID,
		})
		if err != nil {
			return fmt.Errorf("failed to evaluate policy: %w", err)
		}

		out := cmd.OutOrStdout()
		if eval.CanReschedule {
			fmt.Fprintln(out, "Reschedule allowed")
		} else {
			fmt.Fprintf(out, "Reschedule not allowed: %s\n", strings.Join(eval.Reasons, "; "))
		}
		fmt.Fprintf(out, "  hours until appointment: %.2f\n", eval.HoursUntilAppointment)
		fmt.Fprintf(out, "  reschedules used: %d of %d\n", eval.RescheduleCount, eval.MaxReschedules)
		if eval.PotentialFeeCents > 0 {
			fmt.Fprintf(out, "  late fee if cancelled now: %s\n", cents(eval.PotentialFeeCents))
		}
		return nil
	},
}

func init() {
	policyCmd.Flags().StringVar(&policyPatient, "patient", "", "patient ID")
	_ = policyCmd.MarkFlagRequired("patient")
}
