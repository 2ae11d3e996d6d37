// Package catalog holds the practitioner setup commands: weekly business
// hours and the service types patients can book.
package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

// HoursCmd is the business hours command group
var HoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Manage business hours",
}

// ServiceCmd is the service type command group
var ServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage service types",
}

var (
	hoursOwner    string
	hoursTimezone string
	hoursAdvance  int
	hoursNotice   int
	hoursDays     []string

	serviceOwner    string
	serviceDuration int
	servicePrice    int64
	serviceOnline   bool
	serviceDeposit  bool
)

var hoursSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace a practitioner's weekly hours",
	Long: `Replace a practitioner's weekly hours. Weekdays not listed are closed.

Examples:
  chiroflow hours set --owner 5f0c... --tz America/Toronto \
    --day mon=09:00-17:00 --day tue=09:00-17:00 --day sat=10:00-14:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ownerID, err := uuid.Parse(hoursOwner)
		if err != nil {
			return fmt.Errorf("invalid owner ID: %w", err)
		}
		days, err := parseDays(hoursDays)
		if err != nil {
			return err
		}

		hours, err := app.SetBusinessHoursHandler.Handle(cmd.Context(), schedulingCommands.SetBusinessHoursCommand{
			OwnerID:            ownerID,
			Timezone:           hoursTimezone,
			AdvanceBookingDays: hoursAdvance,
			MinimumNoticeHours: hoursNotice,
			Days:               days,
		})
		if err != nil {
			return fmt.Errorf("failed to set business hours: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Business hours saved for %s (%s)\n", hours.OwnerID(), hoursTimezone)
		for _, d := range days {
			fmt.Fprintf(out, "  %-9s %s-%s\n", d.Weekday, d.Open, d.Close)
		}
		return nil
	},
}

var serviceAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a service type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ownerID, err := uuid.Parse(serviceOwner)
		if err != nil {
			return fmt.Errorf("invalid owner ID: %w", err)
		}

		service, err := app.AddServiceTypeHandler.Handle(cmd.Context(), schedulingCommands.AddServiceTypeCommand{
			OwnerID:             ownerID,
			Name:                args[0],
			DurationMinutes:     serviceDuration,
			PriceCents:          servicePrice,
			AllowsOnlineBooking: serviceOnline,
			RequiresDeposit:     serviceDeposit,
		})
		if err != nil {
			return fmt.Errorf("failed to add service type: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Service type added: %s\n", service.ID())
		fmt.Fprintf(out, "  name: %s\n", args[0])
		fmt.Fprintf(out, "  duration: %d minutes\n", serviceDuration)
		return nil
	},
}

// parseDays reads repeated "weekday=HH:MM-HH:MM" flags.
func parseDays(specs []string) ([]schedulingCommands.DaySpec, error) {
	days := make([]schedulingCommands.DaySpec, 0, len(specs))
	for _, spec := range specs {
		weekday, span, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --day %q (want weekday=HH:MM-HH:MM)", spec)
		}
		open, closeAt, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("invalid --day %q (want weekday=HH:MM-HH:MM)", spec)
		}
		days = append(days, schedulingCommands.DaySpec{Weekday: weekday, Open: open, Close: closeAt})
	}
	return days, nil
}

func init() {
	hoursSetCmd.Flags().StringVar(&hoursOwner, "owner", "", "practitioner ID")
	hoursSetCmd.Flags().StringVar(&hoursTimezone, "tz", "UTC", "IANA timezone of the clinic")
	hoursSetCmd.Flags().IntVar(&hoursAdvance, "advance-days", 30, "how far ahead patients may book")
	hoursSetCmd.Flags().IntVar(&hoursNotice, "notice-hours", 2, "minimum notice for online bookings")
	hoursSetCmd.Flags().StringArrayVar(&hoursDays, "day", nil, "open day as weekday=HH:MM-HH:MM (repeatable)")
	_ = hoursSetCmd.MarkFlagRequired("owner")
	HoursCmd.AddCommand(hoursSetCmd)

	serviceAddCmd.Flags().StringVar(&serviceOwner, "owner", "", "practitioner ID")
	serviceAddCmd.Flags().IntVarP(&serviceDuration, "duration", "d", 30, "duration in minutes")
	serviceAddCmd.Flags().Int64Var(&servicePrice, "price-cents", 0, "price in cents")
	serviceAddCmd.Flags().BoolVar(&serviceOnline, "online", true, "patients may book it online")
	serviceAddCmd.Flags().BoolVar(&serviceDeposit, "deposit", false, "requires a deposit")
	_ = serviceAddCmd.MarkFlagRequired("owner")
	ServiceCmd.AddCommand(serviceAddCmd)
}
