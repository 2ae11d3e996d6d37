package appointment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the appointment command group
var Cmd = &cobra.Command{
	Use:   "appointment",
	Short: "Book and manage appointments",
	Long:  `Book, reschedule, cancel and close out appointments.`,
}

func init() {
	Cmd.AddCommand(bookCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(rescheduleCmd)
	Cmd.AddCommand(policyCmd)
	Cmd.AddCommand(outcomeCmd)
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return id, nil
}

// optionalID parses a flag that may be empty.
func optionalID(raw, what string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw, what)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
