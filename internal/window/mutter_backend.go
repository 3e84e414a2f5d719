package window

import (
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/recapture/internal/logger"
)

const (
	mutterService   = "org.gnome.Shell"
	mutterPath      = "/org/gnome/Shell/Extensions/Windows"
	mutterInterface = "org.gnome.Shell.Extensions.Windows"
)

// MutterBackend enumerates windows on GNOME Wayland sessions through the
// Window Calls shell extension, which exposes the window list over D-Bus.
type MutterBackend struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// mutterWindow mirrors the JSON the extension's List method returns. Older
// extension versions omit the title; GetTitle fills the gap.
type mutterWindow struct {
	ID                 uint64 `json:"id"`
	Title              string `json:"title"`
	WMClass            string `json:"wm_class"`
	WMClassInstance    string `json:"wm_class_instance"`
	PID                int    `json:"pid"`
	Focus              bool   `json:"focus"`
	FrameType          int    `json:"frame_type"`
	WindowType         int    `json:"window_type"`
	InCurrentWorkspace bool   `json:"in_current_workspace"`
}

// NewMutterBackend connects to the session bus.
func NewMutterBackend() (*MutterBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	return &MutterBackend{
		conn: conn,
		obj:  conn.Object(mutterService, mutterPath),
	}, nil
}

// Connect verifies GNOME Shell is on the bus and the Window Calls extension
// answers.
func (b *MutterBackend) Connect() error {
	var names []string
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	found := false
	for _, name := range names {
		if name == mutterService {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%s is not on the session bus", mutterService)
	}

	var payload string
	if err := b.obj.Call(mutterInterface+".List", 0).Store(&payload); err != nil {
		return fmt.Errorf("Window Calls extension not available: %w", err)
	}

	logger.WithComponent("mutter-backend").Debug().Msg("Window Calls extension detected")
	return nil
}

// Close closes the session bus connection.
func (b *MutterBackend) Close() error {
	return b.conn.Close()
}

// Name returns the backend name.
func (b *MutterBackend) Name() string {
	return "mutter"
}

// Windows lists all normal windows known to the shell.
func (b *MutterBackend) Windows() ([]Window, error) {
	var payload string
	if err := b.obj.Call(mutterInterface+".List", 0).Store(&payload); err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	return parseMutterList([]byte(payload), b.title)
}

// parseMutterList decodes the extension's List payload, keeping normal
// windows. missingTitle fills titles older extension versions omit from the
// list.
func parseMutterList(payload []byte, missingTitle func(uint32) string) ([]Window, error) {
	var raw []mutterWindow
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse window list: %w", err)
	}

	windows := make([]Window, 0, len(raw))
	for _, mw := range raw {
		// window_type 0 is a normal window; everything else is shell
		// chrome, docks, or popups.
		if mw.WindowType != 0 {
			continue
		}

		title := mw.Title
		if title == "" && missingTitle != nil {
			title = missingTitle(uint32(mw.ID))
		}

		app := mw.WMClassInstance
		if app == "" {
			app = mw.WMClass
		}
		if title == "" && app == "" {
			continue
		}

		windows = append(windows, Window{
			ID:    uint32(mw.ID),
			Title: title,
			App:   app,
			PID:   mw.PID,
		})
	}
	return windows, nil
}

// Window refreshes a single window by handle.
func (b *MutterBackend) Window(id uint32) (*Window, error) {
	windows, err := b.Windows()
	if err != nil {
		return nil, err
	}
	for i := range windows {
		if windows[i].ID == id {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrWindowGone, id)
}

// title fetches a title the List payload did not carry.
func (b *MutterBackend) title(id uint32) string {
	var title string
	if err := b.obj.Call(mutterInterface+".GetTitle", 0, id).Store(&title); err != nil {
		return ""
	}
	return title
}
