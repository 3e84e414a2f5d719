package window

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/image/draw"
)

// Snapshotter is implemented by backends that can grab window pixels for
// diagnostic previews. Tracking never depends on it.
type Snapshotter interface {
	Snapshot(id uint32) (*image.RGBA, error)
}

// Snapshot grabs the current contents of a window. Only viewable windows can
// be imaged; minimized or unmapped ones return an error.
func (b *X11Backend) Snapshot(id uint32) (*image.RGBA, error) {
	win := xproto.Window(id)

	attrs, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrWindowGone, id)
	}
	if attrs.Class != xproto.WindowClassInputOutput || attrs.MapState != xproto.MapStateViewable {
		return nil, fmt.Errorf("window %d is not viewable", id)
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	reply, err := xproto.GetImage(
		b.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(win),
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window image: %w", err)
	}

	return bgraToRGBA(reply.Data, int(geom.Width), int(geom.Height)), nil
}

// bgraToRGBA converts X11 ZPixmap data (BGRA on 24/32-bit visuals) into an
// RGBA image.
func bgraToRGBA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := len(img.Pix)
	if len(data) < n {
		n = len(data)
	}
	for i := 0; i+3 < n; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	return img
}

// Thumbnail scales an image down to at most maxWidth pixels wide, keeping the
// aspect ratio. Images already small enough come back untouched.
func Thumbnail(img *image.RGBA, maxWidth int) *image.RGBA {
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return img
	}

	height := bounds.Dy() * maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
