package token

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	accessApp "github.com/maximegiguere1one/chiroflow/internal/access/application"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	"github.com/spf13/cobra"
)

// Cmd is the token command group
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and use patient action links",
	Long: `Resolve or perform the token carried in a patient link, as support
staff would when a patient calls instead of clicking.`,
}

var (
	performReason string
	performNotes  string
	performSlot   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [token]",
	Short: "Show what a token acts on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		res, err := app.Gateway.Resolve(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve token: %w", err)
		}
		return printJSON(cmd, res)
	},
}

var performCmd = &cobra.Command{
	Use:   "perform [token] [action]",
	Short: "Perform a token action",
	Long: `Perform an action with a token. Actions: confirm_presence, cancel,
accept, decline, request_callback. Repeating the performed action shows
the stored result.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		input := accessApp.ActionInput{Reason: performReason, Notes: performNotes}
		if performSlot != "" {
			id, err := uuid.Parse(performSlot)
			if err != nil {
				return fmt.Errorf("invalid slot ID: %w", err)
			}
			input.SelectedSlotID = &id
		}

		result, err := app.Gateway.Perform(cmd.Context(), args[0], accessDomain.Action(args[1]), input)
		if err != nil {
			return fmt.Errorf("failed to perform %s: %w", args[1], err)
		}
		return printJSON(cmd, result)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	performCmd.Flags().StringVarP(&performReason, "reason", "r", "", "cancellation reason")
	performCmd.Flags().StringVar(&performNotes, "notes", "", "notes for a callback request")
	performCmd.Flags().StringVar(&performSlot, "slot", "", "rebooking time slot ID to accept")
	Cmd.AddCommand(resolveCmd)
	Cmd.AddCommand(performCmd)
}
