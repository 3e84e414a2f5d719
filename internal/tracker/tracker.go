package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/recapture/internal/config"
	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
	"github.com/bryanchriswhite/recapture/internal/window"
)

// State names the tracker's watch state.
type State string

const (
	// StateUnwatched means no window is being tracked.
	StateUnwatched State = "unwatched"
	// StateWatching means a matched window is being polled for liveness
	// and title changes.
	StateWatching State = "watching"
)

// Trigger identifies why a pass runs. It shows up in logs and events.
type Trigger string

const (
	TriggerConnected    Trigger = "connected"
	TriggerConfig       Trigger = "config_updated"
	TriggerSceneChanged Trigger = "scene_changed"
	TriggerWindowClosed Trigger = "window_closed"
	TriggerTitleChanged Trigger = "title_changed"
	TriggerResync       Trigger = "resync"
)

// WindowReader is the slice of a window backend the tracker needs:
// enumeration for matching and single-handle reads for the watch poll.
type WindowReader interface {
	Enumerator
	Window(id uint32) (*window.Window, error)
}

// Status is a snapshot of the tracker for the control API and CLI.
type Status struct {
	State       State                `json:"state"`
	Window      *window.Window       `json:"window,omitempty"`
	Target      config.CaptureTarget `json:"target"`
	LastOutcome string               `json:"last_outcome,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	LastSync    *time.Time           `json:"last_sync,omitempty"`
}

// Tracker keeps a capture source pointed at its target window. A single
// event loop goroutine owns all tracking state and serializes every trigger:
// host events, config changes, watch ticks, and manual resyncs.
type Tracker struct {
	windows WindowReader
	matcher *Matcher
	rec     *Reconciler
	log     *zerolog.Logger

	// Owned by the Run loop.
	target       config.CaptureTarget
	pollInterval time.Duration
	state        State
	watched      *window.Window

	resyncCh chan Trigger

	mu     sync.Mutex
	status Status
	subs   []chan Event
}

// New creates a tracker. Run starts the loop.
func New(windows WindowReader, host Host, cfg config.Config) *Tracker {
	t := &Tracker{
		windows:      windows,
		matcher:      NewMatcher(windows),
		rec:          NewReconciler(host),
		log:          logger.WithComponent("tracker"),
		target:       cfg.Target,
		pollInterval: cfg.PollInterval(),
		state:        StateUnwatched,
		resyncCh:     make(chan Trigger, 1),
	}
	t.status = Status{State: StateUnwatched, Target: cfg.Target}
	return t
}

// Run drives the tracker until ctx is done. Host events arrive on
// hostEvents; accepted config changes arrive on configCh. Both channels may
// be nil.
func (t *Tracker) Run(ctx context.Context, hostEvents <-chan obs.Event, configCh <-chan config.Config) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.log.Info().
		Str("source", t.target.Source).
		Str("executable", t.target.Executable).
		Dur("poll_interval", t.pollInterval).
		Msg("Tracker running")

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-hostEvents:
			if !ok {
				hostEvents = nil
				continue
			}
			t.handleHostEvent(ctx, ev)

		case cfg, ok := <-configCh:
			if !ok {
				configCh = nil
				continue
			}
			t.applyConfig(ctx, cfg, ticker)

		case trigger := <-t.resyncCh:
			t.sync(ctx, trigger)

		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// Resync requests a full match-and-reconcile pass from the loop. Requests
// coalesce while one is pending.
func (t *Tracker) Resync() {
	select {
	case t.resyncCh <- TriggerResync:
	default:
	}
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	if t.status.Window != nil {
		w := *t.status.Window
		s.Window = &w
	}
	return s
}

// Subscribe registers an event channel. Slow receivers drop events rather
// than stalling the loop.
func (t *Tracker) Subscribe() chan Event {
	ch := make(chan Event, 16)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (t *Tracker) Unsubscribe(ch chan Event) {
	t.mu.Lock()
	for i, sub := range t.subs {
		if sub == ch {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			close(ch)
			break
		}
	}
	t.mu.Unlock()
}

func (t *Tracker) handleHostEvent(ctx context.Context, ev obs.Event) {
	switch ev.Type {
	case obs.EventConnected:
		t.log.Info().Msg("Host connected, synchronizing")
		t.sync(ctx, TriggerConnected)
	case obs.EventSceneChanged:
		t.log.Info().Str("scene", ev.SceneName).Msg("Scene changed, synchronizing")
		t.sync(ctx, TriggerSceneChanged)
	case obs.EventDisconnected:
		// Keep watching; the connected event after reconnect resyncs.
		t.log.Debug().Msg("Host disconnected")
	case obs.EventExiting:
		t.log.Info().Msg("Host is shutting down")
	}
}

// applyConfig replaces the target wholesale and resynchronizes. Backend and
// server settings need a restart; they are ignored here.
func (t *Tracker) applyConfig(ctx context.Context, cfg config.Config, ticker *time.Ticker) {
	if interval := cfg.PollInterval(); interval != t.pollInterval {
		t.pollInterval = interval
		ticker.Reset(interval)
		t.log.Info().Dur("poll_interval", interval).Msg("Poll interval changed")
	}

	t.target = cfg.Target
	t.mu.Lock()
	t.status.Target = cfg.Target
	t.mu.Unlock()

	t.log.Info().
		Str("source", cfg.Target.Source).
		Str("executable", cfg.Target.Executable).
		Str("pattern", cfg.Target.TitlePattern).
		Msg("Configuration applied")
	t.emit(EventConfig, TriggerConfig, nil, nil)

	t.sync(ctx, TriggerConfig)
}

// sync is the full pass: match, arm the watch, reconcile both keys. A failed
// match leaves the tracker unwatched.
func (t *Tracker) sync(ctx context.Context, trigger Trigger) {
	if !t.target.Configured() {
		t.setUnwatched()
		t.log.Debug().Msg("No target configured, tracker idle")
		return
	}

	win, err := t.matcher.Match(ctx, t.target)
	if err != nil {
		t.matchFailed(trigger, err)
		return
	}

	t.setWatching(win)
	t.emit(EventMatched, trigger, win, nil)

	t.reconcile(ctx, trigger, win, UpdateAll)
}

// poll is the watch tick: check the tracked window for liveness and title
// changes.
func (t *Tracker) poll(ctx context.Context) {
	if t.state != StateWatching || t.watched == nil {
		return
	}

	current, err := t.windows.Window(t.watched.ID)
	if err != nil {
		if errors.Is(err, window.ErrWindowGone) {
			t.log.Info().
				Uint32("id", t.watched.ID).
				Str("title", t.watched.Title).
				Msg("Window has been closed")
			t.emit(EventLost, TriggerWindowClosed, t.watched, nil)
			t.sync(ctx, TriggerWindowClosed)
			return
		}
		t.log.Warn().Err(err).Msg("Failed to poll watched window")
		return
	}

	if current.Title != t.watched.Title {
		t.log.Info().
			Str("old_title", t.watched.Title).
			Str("title", current.Title).
			Msg("Window title has been changed")
		t.titleSync(ctx, current)
	}
}

// titleSync handles a retitled window: re-match, and on success rewrite only
// the window key. The tracked handle moves only when the match does.
func (t *Tracker) titleSync(ctx context.Context, current *window.Window) {
	// Remember the new title either way so the same change does not refire
	// on every tick.
	t.watched = current

	win, err := t.matcher.Match(ctx, t.target)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			// The window is alive but its title stopped matching. Keep
			// watching; a later title change may match again.
			t.log.Info().Msg("Title no longer matches, still watching")
			t.setError(err)
			return
		}
		t.matchFailed(TriggerTitleChanged, err)
		return
	}

	if win.ID != current.ID {
		t.setWatching(win)
	} else {
		t.watched = win
	}
	t.emit(EventMatched, TriggerTitleChanged, win, nil)

	t.reconcile(ctx, TriggerTitleChanged, win, UpdateTitle)
}

func (t *Tracker) reconcile(ctx context.Context, trigger Trigger, win *window.Window, scope Scope) {
	outcome, err := t.rec.Reconcile(ctx, t.target.Source, win, scope)
	if err != nil {
		t.log.Warn().Err(err).Msg("Reconciliation failed")
		t.setError(err)
		t.emit(EventError, trigger, win, err)
		return
	}

	now := time.Now()
	t.mu.Lock()
	t.status.LastOutcome = outcome.String()
	t.status.LastError = ""
	t.status.LastSync = &now
	t.mu.Unlock()

	switch outcome {
	case OutcomeUpdated:
		t.emit(EventUpdated, trigger, win, nil)
	case OutcomeUnchanged:
		t.emit(EventUnchanged, trigger, win, nil)
	case OutcomeSourceMissing:
		t.emit(EventSourceMissing, trigger, win, nil)
	}
}

func (t *Tracker) matchFailed(trigger Trigger, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	t.setUnwatched()
	t.setError(err)
	if errors.Is(err, ErrNoMatch) {
		t.emit(EventLost, trigger, nil, err)
	} else {
		t.log.Warn().Err(err).Msg("Window search failed")
		t.emit(EventError, trigger, nil, err)
	}
}

// setWatching arms the watch on a window, replacing any previous watch. The
// old watch cannot outlive this; the loop owns a single watched handle.
func (t *Tracker) setWatching(win *window.Window) {
	t.state = StateWatching
	w := *win
	t.watched = &w

	t.mu.Lock()
	t.status.State = StateWatching
	snap := w
	t.status.Window = &snap
	t.mu.Unlock()

	t.log.Debug().
		Uint32("id", win.ID).
		Str("title", win.Title).
		Msg("Watching window for title changes and close")
}

func (t *Tracker) setUnwatched() {
	t.state = StateUnwatched
	t.watched = nil

	t.mu.Lock()
	t.status.State = StateUnwatched
	t.status.Window = nil
	t.mu.Unlock()
}

func (t *Tracker) setError(err error) {
	t.mu.Lock()
	t.status.LastError = err.Error()
	t.mu.Unlock()
}

func (t *Tracker) emit(kind EventKind, trigger Trigger, win *window.Window, err error) {
	ev := Event{
		Kind:   kind,
		Reason: string(trigger),
		Time:   time.Now(),
	}
	if win != nil {
		w := *win
		ev.Window = &w
	}
	if err != nil {
		ev.Error = err.Error()
	}

	t.mu.Lock()
	subs := make([]chan Event, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
