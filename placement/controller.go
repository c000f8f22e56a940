// Package placement turns drag and resize gestures into placement updates
// for the active view.
package placement

import (
	"errors"
	"fmt"
	"math"

	"tshirt-designer/core"
	"tshirt-designer/viewstate"
)

// ErrNoDesign is returned when the active view has nothing to move.
var ErrNoDesign = errors.New("active view has no design")

type (
	// Bounds limits the top-left corner of a design on a view.
	Bounds struct {
		Left   float64 `json:"left"`
		Top    float64 `json:"top"`
		Right  float64 `json:"right"`
		Bottom float64 `json:"bottom"`
	}

	// Limits are the drag bounds and size range of a kind of view.
	Limits struct {
		Bounds  Bounds    `json:"bounds"`
		MinSize core.Size `json:"minSize"`
		MaxSize core.Size `json:"maxSize"`
	}
)

var (
	// FrontBackLimits apply to the front and back views.
	FrontBackLimits = Limits{
		Bounds:  Bounds{Left: -50, Top: 0, Right: 260, Bottom: 330},
		MinSize: core.Size{Width: 50, Height: 50},
		MaxSize: core.Size{Width: 200, Height: 200},
	}
	// SleeveLimits apply to both sleeves, whose canvas is larger and offset.
	SleeveLimits = Limits{
		Bounds:  Bounds{Left: 600, Top: 600, Right: 1500, Bottom: 1500},
		MinSize: core.Size{Width: 50, Height: 50},
		MaxSize: core.Size{Width: 800, Height: 800},
	}
)

// LimitsFor returns the limits of v.
func LimitsFor(v core.ViewID) Limits {
	if v.IsSleeve() {
		return SleeveLimits
	}
	return FrontBackLimits
}

// Corner names a resize handle.
type Corner int

const (
	SE Corner = iota
	SW
	NE
	NW
)

var cornerNames = [...]string{"se", "sw", "ne", "nw"}

func (c Corner) String() string {
	if c < SE || c > NW {
		return fmt.Sprintf("Corner(%d)", int(c))
	}
	return cornerNames[c]
}

// ParseCorner parses "se", "sw", "ne" or "nw".
func ParseCorner(s string) (Corner, error) {
	for i, name := range cornerNames {
		if name == s {
			return Corner(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resize handle %q", s)
}

func (c Corner) west() bool  { return c == SW || c == NW }
func (c Corner) north() bool { return c == NE || c == NW }

// Controller applies gestures to the active view of a store. It never
// touches image references.
type Controller struct {
	store *viewstate.Store
}

func NewController(store *viewstate.Store) *Controller {
	return &Controller{store: store}
}

// Drag moves the active design by (dx, dy), clamped to the view's bounds.
func (c *Controller) Drag(dx, dy float64) (viewstate.Placement, error) {
	return c.adjust(func(view core.ViewID, live viewstate.Placement, _ float64) (viewstate.Placement, error) {
		pos := clampPosition(core.Position{X: live.Position.X + dx, Y: live.Position.Y + dy}, LimitsFor(view).Bounds)
		return viewstate.Placement{Position: pos, Size: live.Size}, nil
	})
}

// Resize drags the given corner handle by (dx, dy). The aspect ratio locked
// at upload is kept, the size is clamped to the view's range, and the
// opposite corner stays put.
func (c *Controller) Resize(corner Corner, dx, dy float64) (viewstate.Placement, error) {
	if corner < SE || corner > NW {
		return viewstate.Placement{}, fmt.Errorf("invalid resize handle %d", int(corner))
	}

	return c.adjust(func(view core.ViewID, live viewstate.Placement, ratio float64) (viewstate.Placement, error) {
		if ratio <= 0 {
			ratio = live.Size.Ratio()
		}
		dw, dh := dx, dy
		if corner.west() {
			dw = -dw
		}
		if corner.north() {
			dh = -dh
		}
		limits := LimitsFor(view)
		size := LockedSize(live.Size, dw, dh, ratio, limits)

		pos := live.Position
		if corner.west() {
			pos.X -= size.Width - live.Size.Width
		}
		if corner.north() {
			pos.Y -= size.Height - live.Size.Height
		}
		return viewstate.Placement{Position: clampPosition(pos, limits.Bounds), Size: size}, nil
	})
}

// adjust runs fn against the active view in one store transaction, so a
// view switch lands either before or after the whole gesture.
func (c *Controller) adjust(fn viewstate.AdjustFunc) (viewstate.Placement, error) {
	p, ok, err := c.store.AdjustActive(fn)
	if !ok {
		return viewstate.Placement{}, ErrNoDesign
	}
	if err != nil {
		return viewstate.Placement{}, err
	}
	return p, nil
}

// LockedSize grows cur by (dw, dh) keeping width/height equal to ratio. The
// dominant axis drives the change, then the result is clamped to limits.
func LockedSize(cur core.Size, dw, dh, ratio float64, limits Limits) core.Size {
	w := cur.Width + dw
	h := cur.Height + dh
	if math.Abs(dw) > math.Abs(dh*ratio) {
		h = w / ratio
	} else {
		w = h * ratio
	}

	lo := math.Max(limits.MinSize.Width, limits.MinSize.Height*ratio)
	hi := math.Min(limits.MaxSize.Width, limits.MaxSize.Height*ratio)
	// For ratios too extreme to fit both limits the maximum wins: the long
	// side sits at the maximum and the short side drops below the minimum.
	if lo > hi {
		lo = hi
	}
	w = math.Min(math.Max(w, lo), hi)
	return core.Size{Width: w, Height: w / ratio}
}

func clampPosition(p core.Position, b Bounds) core.Position {
	return core.Position{
		X: math.Min(math.Max(p.X, b.Left), b.Right),
		Y: math.Min(math.Max(p.Y, b.Top), b.Bottom),
	}
}
