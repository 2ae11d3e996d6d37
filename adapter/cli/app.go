package cli

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/app"
)

// ErrNotInitialized is returned by commands that need the database when
// the container failed to start.
var ErrNotInitialized = errors.New("application not initialized - database connection required")

// App holds the CLI application dependencies.
type App struct {
	*app.Container

	// ActorID is recorded on events raised from the command line.
	ActorID uuid.UUID
}

// NewApp creates a new CLI application over a wired container.
func NewApp(c *app.Container) *App {
	return &App{Container: c}
}

// SetActorID sets the actor recorded on events.
func (a *App) SetActorID(id uuid.UUID) {
	a.ActorID = id
}

// Now returns the container clock's time.
func (a *App) Now() time.Time {
	return a.Clock.Now()
}

var cliApp *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	cliApp = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return cliApp
}

// RequireApp returns the application or ErrNotInitialized.
func RequireApp() (*App, error) {
	if cliApp == nil || cliApp.Container == nil {
		return nil, ErrNotInitialized
	}
	return cliApp, nil
}
