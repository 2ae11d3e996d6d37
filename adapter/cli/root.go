package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

var (
	verbose bool
	actor   string
	logger  *slog.Logger
)

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "chiroflow",
	Short: "ChiroFlow - appointment scheduling engine",
	Long: `ChiroFlow books, moves and cancels clinic appointments, offers freed
slots to the waitlist and serves the one-click links sent to patients.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: beginCommand,
	PersistentPostRun: endCommand,
}

// beginCommand gives every command a correlation id and, with --actor, the
// staff member recorded on the events it raises.
func beginCommand(cmd *cobra.Command, _ []string) error {
	if verbose {
		logger = observability.NewLogger(observability.LogConfig{
			Level:  observability.LogLevelDebug,
			Format: observability.LogFormatText,
			Output: os.Stderr,
		})
	}

	ctx := observability.WithCorrelationID(cmd.Context(), uuid.NewString())
	ctx = context.WithValue(ctx, startedAtKey{}, time.Now())

	if actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			return fmt.Errorf("invalid --actor: %w", err)
		}
		if cliApp != nil {
			cliApp.SetActorID(id)
		}
		ctx = observability.WithActorID(ctx, id.String())
	}

	cmd.SetContext(ctx)
	cliLogger().DebugContext(ctx, "command start", "command", cmd.CommandPath())
	return nil
}

func endCommand(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	started, ok := ctx.Value(startedAtKey{}).(time.Time)
	if !ok {
		return
	}
	cliLogger().DebugContext(ctx, "command end",
		"command", cmd.CommandPath(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

func cliLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Execute runs the command named by os.Args.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "staff member ID recorded on events")
}

func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Root returns the root command for tests.
func Root() *cobra.Command {
	return rootCmd
}

func SetLogger(l *slog.Logger) {
	logger = l
}
