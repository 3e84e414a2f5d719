package tracker

import (
	"time"

	"github.com/bryanchriswhite/recapture/internal/window"
)

// EventKind classifies tracker events.
type EventKind string

const (
	// EventMatched fires when a search finds the target window.
	EventMatched EventKind = "matched"
	// EventUpdated fires when new settings were pushed to the host.
	EventUpdated EventKind = "updated"
	// EventUnchanged fires when a pass found the source already current.
	EventUnchanged EventKind = "unchanged"
	// EventLost fires when the tracked window closed or no window matches
	// anymore.
	EventLost EventKind = "lost"
	// EventSourceMissing fires when the current scene lacks the source.
	EventSourceMissing EventKind = "source_missing"
	// EventConfig fires when a new configuration was applied.
	EventConfig EventKind = "config"
	// EventError fires when a pass failed; the tracker carries on.
	EventError EventKind = "error"
)

// Event is one tracker state change, as streamed to control API clients.
type Event struct {
	Kind   EventKind      `json:"kind"`
	Reason string         `json:"reason,omitempty"`
	Window *window.Window `json:"window,omitempty"`
	Error  string         `json:"error,omitempty"`
	Time   time.Time      `json:"time"`
}
