package appointment

import (
	"fmt"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome [appointment-id] [completed|no_show]",
	Short: "Record whether the patient came",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "appointment")
		if err != nil {
			return err
		}

		if err := app.RecordOutcomeHandler.Handle(cmd.Context(), schedulingCommands.RecordOutcomeCommand{
			AppointmentID: id,
			Outcome:       args[1],
			ActorID:       app.ActorID,
		}); err != nil {
			return fmt.Errorf("failed to record outcome: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Appointment %s marked %s\n", id, args[1])
		return nil
	},
}
