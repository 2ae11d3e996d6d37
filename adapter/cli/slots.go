package cli

import (
	"fmt"

	"github.com/google/uuid"
	schedulingQueries "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/queries"
	"github.com/spf13/cobra"
)

var (
	slotsStart    string
	slotsEnd      string
	slotsDuration int
	slotsService  string
	slotsAll      bool
)

var slotsCmd = &cobra.Command{
	Use:   "slots [owner-id]",
	Short: "List bookable slots for a practitioner",
	Long: `List the slots of a practitioner's calendar between two dates.

Examples:
  chiroflow slots 5f0c... --start 2026-10-20 --end 2026-10-23 --duration 30
  chiroflow slots 5f0c... --start 2026-10-20 --service 7a1e... --all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		ownerID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid owner ID: %w", err)
		}

		query := schedulingQueries.GetAvailableSlotsQuery{
			OwnerID:         ownerID,
			StartDate:       slotsStart,
			EndDate:         slotsEnd,
			DurationMinutes: slotsDuration,
		}
		if slotsEnd == "" {
			query.EndDate = slotsStart
		}
		if slotsService != "" {
			id, err := uuid.Parse(slotsService)
			if err != nil {
				return fmt.Errorf("invalid service type ID: %w", err)
			}
			query.ServiceTypeID = &id
		}

		slots, err := a.GetAvailableSlotsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to list slots: %w", err)
		}

		out := cmd.OutOrStdout()
		shown := 0
		for _, s := range slots {
			if !s.IsAvailable && !slotsAll {
				continue
			}
			mark := "free"
			if !s.IsAvailable {
				mark = "taken"
			}
			fmt.Fprintf(out, "%s %s  %s\n", s.SlotDate, s.SlotTime, mark)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No slots available")
		}
		return nil
	},
}

func init() {
	slotsCmd.Flags().StringVar(&slotsStart, "start", "", "first date (YYYY-MM-DD)")
	slotsCmd.Flags().StringVar(&slotsEnd, "end", "", "last date (YYYY-MM-DD, default --start)")
	slotsCmd.Flags().IntVarP(&slotsDuration, "duration", "d", 0, "slot length in minutes")
	slotsCmd.Flags().StringVar(&slotsService, "service", "", "service type ID; its duration is used when --duration is unset")
	slotsCmd.Flags().BoolVar(&slotsAll, "all", false, "include taken slots")
	_ = slotsCmd.MarkFlagRequired("start")
	rootCmd.AddCommand(slotsCmd)
}
