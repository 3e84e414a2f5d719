package tracker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
	"github.com/bryanchriswhite/recapture/internal/window"
)

// Host is the slice of the obs client the reconciler needs. The host owns
// the scene graph; everything here goes through these four calls.
type Host interface {
	CurrentProgramScene(ctx context.Context) (string, error)
	SceneItems(ctx context.Context, scene string) ([]obs.SceneItem, error)
	InputSettings(ctx context.Context, input string) (obs.Settings, error)
	SetInputSettings(ctx context.Context, input string, settings obs.Settings) error
}

// The two settings keys a window capture source reads its target from. They
// are the only keys reconciliation ever writes.
const (
	keyWindow        = "window"
	keyCaptureWindow = "capture_window"
)

// Scope selects which of the managed keys a reconciliation may rewrite.
type Scope int

const (
	// UpdateAll rewrites both managed keys.
	UpdateAll Scope = iota
	// UpdateTitle rewrites only the window key. The title-change path uses
	// it, deliberately leaving capture_window on the old value.
	UpdateTitle
)

// Outcome is the result of a reconciliation pass.
type Outcome int

const (
	// OutcomeUnchanged means the source already pointed at the window.
	OutcomeUnchanged Outcome = iota
	// OutcomeUpdated means new settings were pushed to the host.
	OutcomeUpdated
	// OutcomeSourceMissing means the current scene has no matching capture
	// source.
	OutcomeSourceMissing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSourceMissing:
		return "source_missing"
	default:
		return "unknown"
	}
}

// Reconciler points a window capture source at a window by rewriting the
// source's managed settings keys through the host.
type Reconciler struct {
	host Host
	log  *zerolog.Logger
}

// NewReconciler creates a reconciler over the given host.
func NewReconciler(host Host) *Reconciler {
	return &Reconciler{
		host: host,
		log:  logger.WithComponent("reconciler"),
	}
}

// Reconcile finds the named capture source in the current program scene and
// rewrites its managed keys to point at win. The full settings blob rides
// along on update, so keys other sources of truth own survive unchanged.
// A second pass with the same window is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, source string, win *window.Window, scope Scope) (Outcome, error) {
	scene, err := r.host.CurrentProgramScene(ctx)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to get current scene: %w", err)
	}

	items, err := r.host.SceneItems(ctx, scene)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to list scene items: %w", err)
	}

	found := false
	for i := range items {
		if items[i].SourceName == source && obs.IsWindowCaptureKind(items[i].InputKind) {
			found = true
			break
		}
	}
	if !found {
		r.log.Warn().
			Str("source", source).
			Str("scene", scene).
			Msg("No window capture source with that name in the current scene")
		return OutcomeSourceMissing, nil
	}

	stale, err := r.host.InputSettings(ctx, source)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to read source settings: %w", err)
	}

	updated := stale.Clone()
	updated[keyWindow] = fmt.Sprintf("%s:%s", win.Title, win.App)
	if scope == UpdateAll {
		updated[keyCaptureWindow] = fmt.Sprintf("%d\r\n%s\r\n%s", win.ID, win.Title, win.App)
	}

	if stale.Equal(updated) {
		r.log.Debug().
			Str("source", source).
			Str("window", updated.String(keyWindow)).
			Msg("Source settings already current")
		return OutcomeUnchanged, nil
	}

	if err := r.host.SetInputSettings(ctx, source, updated); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to update source settings: %w", err)
	}

	r.log.Info().
		Str("source", source).
		Str("stale_window", stale.String(keyWindow)).
		Str("window", updated.String(keyWindow)).
		Msg("Updated source settings")
	return OutcomeUpdated, nil
}
