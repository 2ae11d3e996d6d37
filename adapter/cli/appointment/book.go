package appointment

import (
	"fmt"

	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

var (
	bookOwner   string
	bookPatient string
	bookService string
	bookDate    string
	bookTime    string
	bookNotes   string
	bookByStaff bool
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book an appointment",
	Long: `Book an appointment in the practitioner's local time.

Examples:
  chiroflow appointment book --owner 5f0c... --patient 9b2d... --service 7a1e... --date 2026-10-21 --time 10:00
  chiroflow appointment book ... --staff   # skip the notice window and booking horizon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ownerID, err := parseID(bookOwner, "owner")
		if err != nil {
			return err
		}
		patientID, err := parseID(bookPatient, "patient")
		if err != nil {
			return err
		}
		serviceID, err := parseID(bookService, "service type")
		if err != nil {
			return err
		}

		result, err := app.BookAppointmentHandler.Handle(cmd.Context(), schedulingCommands.BookAppointmentCommand{
			OwnerID:       ownerID,
			PatientID:     patientID,
			ServiceTypeID: serviceID,
			Date:          bookDate,
			Time:          bookTime,
			Notes:         bookNotes,
			ByStaff:       bookByStaff,
			ActorID:       app.ActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to book appointment: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Appointment booked: %s\n", result.AppointmentID)
		fmt.Fprintf(out, "  starts: %s\n", result.StartsAt.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(out, "  ends:   %s\n", result.EndsAt.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(out, "  status: %s\n", result.Status)
		return nil
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookOwner, "owner", "", "practitioner ID")
	bookCmd.Flags().StringVar(&bookPatient, "patient", "", "patient ID")
	bookCmd.Flags().StringVar(&bookService, "service", "", "service type ID")
	bookCmd.Flags().StringVar(&bookDate, "date", "", "local date (YYYY-MM-DD)")
	bookCmd.Flags().StringVar(&bookTime, "time", "", "local start time (HH:MM)")
	bookCmd.Flags().StringVar(&bookNotes, "notes", "", "notes for the practitioner")
	bookCmd.Flags().BoolVar(&bookByStaff, "staff", false, "book on behalf of the clinic")
	for _, f := range []string{"owner", "patient", "service", "date", "time"} {
		_ = bookCmd.MarkFlagRequired(f)
	}
}
