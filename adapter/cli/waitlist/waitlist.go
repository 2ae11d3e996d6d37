package waitlist

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	"github.com/spf13/cobra"
)

// Cmd is the waitlist command group
var Cmd = &cobra.Command{
	Use:   "waitlist",
	Short: "Manage the waitlist",
	Long:  `Add patients to the waitlist and sweep expired slot offers.`,
}

var (
	joinPatient string
	joinName    string
	joinEmail   string
	joinPhone   string
	joinService string
	joinOwner   string

	sweepLimit int
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Add a patient to the waitlist",
	Long: `Add a patient to the waitlist for a service type. Without --owner the
patient takes a slot with any practitioner offering it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		patientID, err := uuid.Parse(joinPatient)
		if err != nil {
			return fmt.Errorf("invalid patient ID: %w", err)
		}
		serviceID, err := uuid.Parse(joinService)
		if err != nil {
			return fmt.Errorf("invalid service type ID: %w", err)
		}
		var ownerID *uuid.UUID
		if joinOwner != "" {
			id, err := uuid.Parse(joinOwner)
			if err != nil {
				return fmt.Errorf("invalid owner ID: %w", err)
			}
			ownerID = &id
		}

		result, err := app.JoinWaitlistHandler.Handle(cmd.Context(), waitlistCommands.JoinWaitlistCommand{
			PatientID:     patientID,
			Name:          joinName,
			Email:         joinEmail,
			Phone:         joinPhone,
			ServiceTypeID: serviceID,
			OwnerID:       ownerID,
		})
		if err != nil {
			return fmt.Errorf("failed to join waitlist: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Waitlist entry created: %s (%s)\n", result.EntryID, result.Status)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire slot offers past their deadline",
	Long: `Run one offer expiry sweep. The worker does this on a timer; the
command is for installs without one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		result, err := app.ExpireOffersHandler.Handle(cmd.Context(), waitlistCommands.ExpireOffersCommand{Limit: sweepLimit})
		if err != nil {
			return fmt.Errorf("failed to sweep offers: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Offers due: %d, expired: %d, failed: %d\n", result.Due, result.Expired, result.Failed)
		return nil
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinPatient, "patient", "", "patient ID")
	joinCmd.Flags().StringVar(&joinName, "name", "", "patient name")
	joinCmd.Flags().StringVar(&joinEmail, "email", "", "contact email")
	joinCmd.Flags().StringVar(&joinPhone, "phone", "", "contact phone")
	joinCmd.Flags().StringVar(&joinService, "service", "", "service type ID")
	joinCmd.Flags().StringVar(&joinOwner, "owner", "", "only this practitioner")
	_ = joinCmd.MarkFlagRequired("patient")
	_ = joinCmd.MarkFlagRequired("service")

	sweepCmd.Flags().IntVar(&sweepLimit, "limit", waitlistCommands.DefaultSweepLimit, "maximum offers to expire")

	Cmd.AddCommand(joinCmd)
	Cmd.AddCommand(sweepCmd)
}
