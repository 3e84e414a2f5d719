package window

import (
	"errors"
	"fmt"
)

// ErrWindowGone reports that a window handle no longer resolves. Watch loops
// treat it as a liveness signal rather than a failure.
var ErrWindowGone = errors.New("window gone")

// Window describes a top-level window at the moment it was enumerated.
// Snapshots are not kept fresh; the ID is the only identity that stays valid
// for the window's lifetime.
type Window struct {
	ID      uint32 `json:"id"`
	Title   string `json:"title"`
	App     string `json:"app"`
	PID     int    `json:"pid"`
	Desktop int    `json:"desktop"`
}

// Backend enumerates top-level windows from a window system.
type Backend interface {
	// Connect verifies the window system is reachable and prepares the
	// backend for queries.
	Connect() error

	// Close releases the connection.
	Close() error

	// Windows returns all top-level windows in the order the window system
	// reports them.
	Windows() ([]Window, error)

	// Window refreshes a single window by handle. Returns ErrWindowGone
	// when the handle no longer resolves.
	Window(id uint32) (*Window, error)

	// Name returns the backend name.
	Name() string
}

// Open connects the named backend: "x11", "mutter", or "auto" to try X11
// first and fall back to Mutter.
func Open(name string) (Backend, error) {
	switch name {
	case "x11":
		return openX11()
	case "mutter":
		return openMutter()
	case "auto", "":
		b, xerr := openX11()
		if xerr == nil {
			return b, nil
		}
		b2, merr := openMutter()
		if merr == nil {
			return b2, nil
		}
		return nil, fmt.Errorf("no usable window backend (x11: %v; mutter: %v)", xerr, merr)
	default:
		return nil, fmt.Errorf("unknown window backend %q", name)
	}
}

func openX11() (Backend, error) {
	b, err := NewX11Backend()
	if err != nil {
		return nil, err
	}
	if err := b.Connect(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func openMutter() (Backend, error) {
	b, err := NewMutterBackend()
	if err != nil {
		return nil, err
	}
	if err := b.Connect(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
