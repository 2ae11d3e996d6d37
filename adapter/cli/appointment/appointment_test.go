package appointment_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/adapter/cli"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/appointment"
	"github.com/maximegiguere1one/chiroflow/adapter/cli/catalog"
	"github.com/maximegiguere1one/chiroflow/internal/app"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func setup(t *testing.T) {
	t.Helper()
	cfg := &config.Config{
		AppEnv:              "test",
		DatabaseDriver:      "sqlite",
		SQLitePath:          filepath.Join(t.TempDir(), "cli.db"),
		OutboxBatchSize:     50,
		OutboxMaxRetries:    3,
		OfferSweepInterval:  time.Minute,
		PublicBaseURL:       "http://localhost:8080",
		MaxReschedules:      2,
		MinNoticeHours:      24,
		LateFees:            []config.LateFeeTier{{Within: 24 * time.Hour, AmountCents: 2500}},
		InvitationTTL:       2 * time.Hour,
		InvitationBatchSize: 5,
		SoftHoldOffers:      true,
		RebookingTTL:        72 * time.Hour,
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  time.Second,
	}
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	c, err := app.NewContainer(context.Background(), cfg, slog.New(slog.DiscardHandler),
		app.WithClock(sharedApplication.ClockFunc(func() time.Time { return now })))
	require.NoError(t, err)
	t.Cleanup(func() {
		cli.SetApp(nil)
		c.Close()
	})
	cli.SetApp(cli.NewApp(c))
	cli.SetLogger(slog.New(slog.DiscardHandler))
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := cli.Root()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestMain(m *testing.M) {
	cli.AddCommand(appointment.Cmd)
	cli.AddCommand(catalog.HoursCmd)
	cli.AddCommand(catalog.ServiceCmd)
	os.Exit(m.Run())
}

func TestAppointmentCommands(t *testing.T) {
	setup(t)

	owner := uuid.NewString()
	patient := uuid.NewString()

	out := run(t, "hours", "set", "--owner", owner, "--tz", "UTC",
		"--day", "mon=09:00-17:00", "--day", "wed=09:00-17:00", "--day", "fri=09:00-17:00")
	assert.Contains(t, out, "Business hours saved")

	out = run(t, "service", "add", "Adjustment", "--owner", owner, "--duration", "30")
	serviceID := idPattern.FindString(out)
	require.NotEmpty(t, serviceID, out)

	out = run(t, "appointment", "book", "--owner", owner, "--patient", patient,
		"--service", serviceID, "--date", "2026-10-21", "--time", "10:00")
	assert.Contains(t, out, "starts: 2026-10-21 10:00 UTC")
	appointmentID := idPattern.FindString(out)
	require.NotEmpty(t, appointmentID, out)

	out = run(t, "appointment", "policy", appointmentID, "--patient", patient)
	assert.Contains(t, out, "Reschedule allowed")
	assert.Contains(t, out, "reschedules used: 0 of 2")

	out = run(t, "appointment", "reschedule", appointmentID, "--patient", patient,
		"--date", "2026-10-23", "--time", "11:00", "--reason", "conflict")
	assert.Contains(t, out, "to:   2026-10-23 11:00 UTC")
	assert.Contains(t, out, "reschedules: 1 of 2")

	out = run(t, "appointment", "cancel", appointmentID, "--patient", patient, "--reason", "travel")
	assert.Contains(t, out, "Appointment cancelled: "+appointmentID)
	assert.NotContains(t, out, "late cancellation")
}

func TestCommandsRequireApp(t *testing.T) {
	cli.SetApp(nil)
	root := cli.Root()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"service", "add", "Massage", "--owner", uuid.NewString()})
	err := root.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, cli.ErrNotInitialized)
}
