package window

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/recapture/internal/logger"
)

// X11Backend enumerates windows over a raw X11 connection using EWMH
// properties, with a QueryTree fallback for window managers that do not
// maintain _NET_CLIENT_LIST.
type X11Backend struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	atoms x11Atoms
}

type x11Atoms struct {
	clientList   xproto.Atom
	netWMName    xproto.Atom
	wmName       xproto.Atom
	wmClass      xproto.Atom
	netWMPid     xproto.Atom
	netWMDesktop xproto.Atom
}

// NewX11Backend connects to the X server.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Backend{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}, nil
}

// Connect interns the atoms every query needs.
func (b *X11Backend) Connect() error {
	var err error
	intern := func(name string) xproto.Atom {
		if err != nil {
			return 0
		}
		var atom xproto.Atom
		atom, err = b.getAtom(name)
		return atom
	}

	b.atoms = x11Atoms{
		clientList:   intern("_NET_CLIENT_LIST"),
		netWMName:    intern("_NET_WM_NAME"),
		wmName:       intern("WM_NAME"),
		wmClass:      intern("WM_CLASS"),
		netWMPid:     intern("_NET_WM_PID"),
		netWMDesktop: intern("_NET_WM_DESKTOP"),
	}
	if err != nil {
		return fmt.Errorf("failed to intern atoms: %w", err)
	}
	return nil
}

// Close closes the X11 connection.
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name.
func (b *X11Backend) Name() string {
	return "x11"
}

// Windows returns all top-level windows, preferring the EWMH client list.
func (b *X11Backend) Windows() ([]Window, error) {
	log := logger.WithComponent("x11-backend")

	windows, err := b.windowsEWMH()
	if err == nil && len(windows) > 0 {
		return windows, nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("EWMH client list unavailable, falling back to QueryTree")
	}

	windows, err = b.windowsQueryTree()
	if err != nil {
		return nil, err
	}
	return windows, nil
}

// windowsEWMH reads _NET_CLIENT_LIST from the root window.
func (b *X11Backend) windowsEWMH() ([]Window, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		b.root,
		b.atoms.clientList,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST: %w", err)
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("_NET_CLIENT_LIST is empty")
	}

	windows := make([]Window, 0, reply.ValueLen)
	for _, id := range parseWindowIDs(reply.Value) {
		win, err := b.windowInfo(id)
		if err != nil {
			// The window can vanish between the list read and the
			// property reads.
			continue
		}
		if win.Title == "" && win.App == "" {
			continue
		}
		windows = append(windows, *win)
	}
	return windows, nil
}

// windowsQueryTree walks the direct children of the root window.
func (b *X11Backend) windowsQueryTree() ([]Window, error) {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}

	windows := make([]Window, 0, len(tree.Children))
	for _, child := range tree.Children {
		win, err := b.windowInfo(child)
		if err != nil {
			continue
		}
		if win.Title == "" && win.App == "" {
			continue
		}
		windows = append(windows, *win)
	}
	return windows, nil
}

// Window refreshes a single window by handle.
func (b *X11Backend) Window(id uint32) (*Window, error) {
	return b.windowInfo(xproto.Window(id))
}

// windowInfo reads the properties of one window. A failed geometry read
// means the handle is dead.
func (b *X11Backend) windowInfo(win xproto.Window) (*Window, error) {
	if _, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply(); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrWindowGone, uint32(win))
	}

	info := &Window{ID: uint32(win)}

	if title, err := b.stringProperty(win, b.atoms.netWMName); err == nil && title != "" {
		info.Title = title
	} else if title, err := b.stringProperty(win, b.atoms.wmName); err == nil {
		info.Title = title
	}

	if raw, err := b.stringProperty(win, b.atoms.wmClass); err == nil {
		info.App = parseWMClass(raw)
	}

	if pid, ok := b.cardinalProperty(win, b.atoms.netWMPid); ok {
		info.PID = int(pid)
	}

	info.Desktop = 0
	if desktop, ok := b.cardinalProperty(win, b.atoms.netWMDesktop); ok {
		// 0xFFFFFFFF marks a sticky window visible on all desktops.
		if desktop == 0xFFFFFFFF {
			info.Desktop = -1
		} else {
			info.Desktop = int(desktop)
		}
	}

	return info, nil
}

// getAtom interns an atom by name.
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// stringProperty reads a property value as a string.
func (b *X11Backend) stringProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}

// cardinalProperty reads a single 32-bit CARDINAL property.
func (b *X11Backend) cardinalProperty(win xproto.Window, atom xproto.Atom) (uint32, bool) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.AtomCardinal,
		0,
		1,
	).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0, false
	}
	return u32le(reply.Value), true
}

// parseWindowIDs decodes an array of little-endian 32-bit window IDs.
func parseWindowIDs(value []byte) []xproto.Window {
	ids := make([]xproto.Window, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xproto.Window(u32le(value[i:])))
	}
	return ids
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// parseWMClass extracts the application name from a raw WM_CLASS value. The
// property holds two null-terminated strings, instance then class; the
// instance is normally the executable name, so it is preferred.
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return ""
}
