// Package viewstate keeps the per-view design state of one editing session:
// the design placed on each garment view, the live placement of the view
// being edited, and the assets that have not been uploaded yet.
package viewstate

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

// Placement is a position and size pair.
type Placement struct {
	Position core.Position `json:"position"`
	Size     core.Size     `json:"size"`
}

var (
	// FrontBackDefault is the first-upload placement on the front and back.
	FrontBackDefault = Placement{Position: core.Position{X: 107, Y: 38}, Size: core.Size{Width: 150, Height: 150}}
	// SleeveDefault is the first-upload placement on either sleeve.
	SleeveDefault = Placement{Position: core.Position{X: 1000, Y: 957}, Size: core.Size{Width: 500, Height: 500}}
)

// DefaultPlacement returns the first-upload placement of v.
func DefaultPlacement(v core.ViewID) Placement {
	if v.IsSleeve() {
		return SleeveDefault
	}
	return FrontBackDefault
}

// RemovePolicy decides where a re-upload lands after a design was removed.
type RemovePolicy int

const (
	// ResetOnRemove places the next upload at the view default.
	ResetOnRemove RemovePolicy = iota
	// RestoreOnRemove places the next upload where the removed design was.
	RestoreOnRemove
)

// ParseRemovePolicy accepts "reset" and "restore".
func ParseRemovePolicy(s string) (RemovePolicy, error) {
	switch s {
	case "", "reset":
		return ResetOnRemove, nil
	case "restore":
		return RestoreOnRemove, nil
	}
	return 0, fmt.Errorf("unknown remove policy %q", s)
}

// Releaser frees the memory behind a transient local image reference.
type Releaser interface {
	Release(ref string)
}

type Store struct {
	mu sync.Mutex

	color   string
	designs core.Designs
	pending core.PendingAssets
	aspect  [core.NumViews]float64

	// last placement of each view, kept after removal for RestoreOnRemove.
	last    [core.NumViews]Placement
	hasLast [core.NumViews]bool

	active core.ViewID
	live   Placement

	releaser     Releaser
	removePolicy RemovePolicy
}

type Option func(*Store)

func WithRemovePolicy(p RemovePolicy) Option {
	return func(s *Store) { s.removePolicy = p }
}

// NewStore returns an empty store editing the front view.
func NewStore(releaser Releaser, opts ...Option) *Store {
	s := &Store{
		color:    core.DefaultColor,
		active:   core.Front,
		live:     DefaultPlacement(core.Front),
		releaser: releaser,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDesign installs image on view. The first design on a view gets the
// view's default placement; replacing an existing design keeps its
// placement and only swaps the image. A previous local reference on the
// view is released.
func (s *Store) SetDesign(view core.ViewID, image core.ImageRef, asset *core.Asset) (core.DesignInstance, error) {
	if !view.Valid() {
		return core.DesignInstance{}, fmt.Errorf("invalid view %d", int(view))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"view": view.String(), "image": image.URL})

	if old := s.designs[view]; old != nil {
		if view == s.active {
			old.Position, old.Size = s.live.Position, s.live.Size
		}
		s.release(old.Image)
		old.Image = image
		s.pending[view] = asset
		log.Info("Design image replaced")
		return *old, nil
	}

	p := DefaultPlacement(view)
	if s.removePolicy == RestoreOnRemove && s.hasLast[view] {
		p = s.last[view]
	}
	d := &core.DesignInstance{Image: image, Position: p.Position, Size: p.Size}
	s.designs[view] = d
	s.pending[view] = asset
	s.aspect[view] = p.Size.Ratio()
	if view == s.active {
		s.live = p
	}
	log.Info("Design installed")
	return *d, nil
}

// RemoveDesign clears the design on view and drops its pending asset.
func (s *Store) RemoveDesign(view core.ViewID) {
	if !view.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.designs[view]
	if d == nil {
		return
	}
	if view == s.active {
		d.Position, d.Size = s.live.Position, s.live.Size
	}
	s.last[view] = Placement{Position: d.Position, Size: d.Size}
	s.hasLast[view] = true

	s.release(d.Image)
	s.designs[view] = nil
	s.pending[view] = nil
	s.aspect[view] = 0
	if view == s.active {
		s.live = DefaultPlacement(view)
	}
	logrus.WithField("view", view.String()).Info("Design removed")
}

// UpdatePlacement changes the placement of view. For the active view the
// live placement changes and reaches the design at the next flush point;
// for any other view the stored design changes directly. Nil arguments are
// left untouched.
func (s *Store) UpdatePlacement(view core.ViewID, pos *core.Position, size *core.Size) error {
	if size != nil && !size.Valid() {
		return fmt.Errorf("size must be positive, got %vx%v", size.Width, size.Height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if view == s.active {
		if pos != nil {
			s.live.Position = *pos
		}
		if size != nil {
			s.live.Size = *size
		}
		return nil
	}

	d := s.designs[view]
	if d == nil {
		return fmt.Errorf("view %s has no design", view)
	}
	if pos != nil {
		d.Position = *pos
	}
	if size != nil {
		d.Size = *size
	}
	return nil
}

// AdjustFunc computes a new live placement for the active view from its
// current live placement and locked aspect ratio.
type AdjustFunc func(view core.ViewID, live Placement, ratio float64) (Placement, error)

// AdjustActive applies fn to the active view's live placement. The store
// stays locked while fn runs, so fn must not call back into it. ok is false
// when the active view has no design, in which case fn is not called.
func (s *Store) AdjustActive(fn AdjustFunc) (p Placement, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.designs[s.active] == nil {
		return Placement{}, false, nil
	}
	next, err := fn(s.active, s.live, s.aspect[s.active])
	if err != nil {
		return Placement{}, true, err
	}
	if !next.Size.Valid() {
		return Placement{}, true, fmt.Errorf("size must be positive, got %vx%v", next.Size.Width, next.Size.Height)
	}
	s.live = next
	return next, true, nil
}

// SwitchActiveView flushes the live placement into the outgoing view's
// design and loads the incoming view's placement, or its default. It
// returns the incoming view's design (nil if none) and its placement.
func (s *Store) SwitchActiveView(view core.ViewID) (*core.DesignInstance, Placement, error) {
	if !view.Valid() {
		return nil, Placement{}, fmt.Errorf("invalid view %d", int(view))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	from := s.active
	s.active = view
	s.loadLiveLocked()

	logrus.WithFields(logrus.Fields{"from": from.String(), "to": view.String()}).Debug("Switched active view")

	var out *core.DesignInstance
	if d := s.designs[view]; d != nil {
		cp := *d
		out = &cp
	}
	return out, s.live, nil
}

// Flush writes the live placement into the active view's design.
func (s *Store) Flush() {
	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()
}

func (s *Store) flushLocked() {
	if d := s.designs[s.active]; d != nil {
		d.Position, d.Size = s.live.Position, s.live.Size
	}
}

func (s *Store) loadLiveLocked() {
	if d := s.designs[s.active]; d != nil {
		s.live = Placement{Position: d.Position, Size: d.Size}
		return
	}
	s.live = DefaultPlacement(s.active)
}

// Active returns the view being edited.
func (s *Store) Active() core.ViewID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Live returns the live placement of the active view.
func (s *Store) Live() Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Design returns a copy of the design on view after applying the live
// placement when view is active.
func (s *Store) Design(view core.ViewID) (core.DesignInstance, bool) {
	if !view.Valid() {
		return core.DesignInstance{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.designs[view]
	if d == nil {
		return core.DesignInstance{}, false
	}
	out := *d
	if view == s.active {
		out.Position, out.Size = s.live.Position, s.live.Size
	}
	return out, true
}

// AspectRatio returns the width/height ratio locked when the design on view
// was installed, or 0 when the view is empty.
func (s *Store) AspectRatio(view core.ViewID) float64 {
	if !view.Valid() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aspect[view]
}

// SetColor sets the garment colour.
func (s *Store) SetColor(c string) error {
	parsed, err := core.ParseColor(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.color = parsed
	s.mu.Unlock()
	return nil
}

func (s *Store) Color() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

// Snapshot flushes and returns a deep copy of the design set together with
// the pending assets.
func (s *Store) Snapshot() (core.DesignSet, core.PendingAssets) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	set := core.DesignSet{TshirtColor: s.color, Designs: s.designs}
	return set.Clone(), s.pending
}

// CommitDurable replaces local references with the uploaded ones. Only views
// whose pending asset is still the one that was uploaded are changed, so a
// design replaced while the save was running keeps its newer image.
func (s *Store) CommitDurable(uploaded core.PendingAssets, refs [core.NumViews]core.ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range core.Views {
		asset := uploaded[v]
		if asset == nil || s.pending[v] != asset {
			continue
		}
		d := s.designs[v]
		if d == nil {
			continue
		}
		s.release(d.Image)
		d.Image = refs[v]
		s.pending[v] = nil
	}
}

// Replace discards the current state and installs set, as after a load. The
// active view is kept and its live placement is taken from set.
func (s *Store) Replace(set core.DesignSet) {
	set = set.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range core.Views {
		if d := s.designs[v]; d != nil {
			s.release(d.Image)
		}
		s.pending[v] = nil
		s.aspect[v] = 0
		if d := set.Designs[v]; d != nil {
			s.aspect[v] = d.Size.Ratio()
		}
	}
	s.designs = set.Designs
	s.color = set.TshirtColor
	if s.color == "" {
		s.color = core.DefaultColor
	}
	s.loadLiveLocked()
	logrus.WithField("active", s.active.String()).Info("Design set restored")
}

func (s *Store) release(ref core.ImageRef) {
	if ref.Local && s.releaser != nil {
		s.releaser.Release(ref.URL)
	}
}
