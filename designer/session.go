// Package designer binds the engine components into per-owner editing
// sessions.
package designer

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
	"tshirt-designer/ingest"
	"tshirt-designer/notify"
	"tshirt-designer/persist"
	"tshirt-designer/placement"
	"tshirt-designer/viewstate"
)

// State is a read-only view of a session for display.
type State struct {
	Active    core.ViewID         `json:"activeView"`
	Live      viewstate.Placement `json:"live"`
	Color     string              `json:"tshirtColor"`
	ColorName string              `json:"colorName,omitempty"`
	Designs   core.Designs        `json:"designs"`
	Saving    bool                `json:"saving"`
	SaveState string              `json:"saveState"`
	Notice    *notify.Notice      `json:"notice,omitempty"`
}

// Session is one owner's editor: the per-view designs, the placement
// controller driving the active view, and the save pipeline.
type Session struct {
	ownerID  string
	store    *viewstate.Store
	ctrl     *placement.Controller
	ingester *ingest.Ingester
	coord    *persist.Coordinator
	notices  *notify.Board
}

func NewSession(ownerID string, store *viewstate.Store, ingester *ingest.Ingester, coord *persist.Coordinator, notices *notify.Board) *Session {
	if notices == nil {
		notices = notify.NewBoard()
	}
	return &Session{
		ownerID:  ownerID,
		store:    store,
		ctrl:     placement.NewController(store),
		ingester: ingester,
		coord:    coord,
		notices:  notices,
	}
}

func (s *Session) OwnerID() string { return s.ownerID }

func (s *Session) Store() *viewstate.Store { return s.store }

func (s *Session) Notices() *notify.Board { return s.notices }

func (s *Session) log() *logrus.Entry {
	return logrus.WithField("owner_id", s.ownerID)
}

// Upload ingests f and installs it on view. On failure a notice is posted
// and the session state is unchanged.
func (s *Session) Upload(ctx context.Context, view core.ViewID, f ingest.File) (core.DesignInstance, error) {
	img, err := s.ingester.Ingest(ctx, f)
	if err != nil {
		msg := "Failed to process image"
		if errors.Is(err, core.ErrUnsupportedMedia) {
			msg = "Please upload an image file"
		}
		s.notices.Fail(err, msg)
		return core.DesignInstance{}, err
	}

	d, err := s.store.SetDesign(view, img.Ref, img.Asset)
	if err != nil {
		s.ingester.Refs().Release(img.Ref.URL)
		s.notices.Fail(err, "Failed to place design")
		return core.DesignInstance{}, err
	}
	s.log().WithFields(logrus.Fields{"view": view.String(), "width": img.Width, "height": img.Height}).Info("Design uploaded")
	return d, nil
}

// Remove clears the design on view.
func (s *Session) Remove(view core.ViewID) {
	s.store.RemoveDesign(view)
}

// Switch makes view the active view.
func (s *Session) Switch(view core.ViewID) (*core.DesignInstance, viewstate.Placement, error) {
	return s.store.SwitchActiveView(view)
}

// Drag moves the active design by dx, dy.
func (s *Session) Drag(dx, dy float64) (viewstate.Placement, error) {
	return s.ctrl.Drag(dx, dy)
}

// Resize drags corner of the active design by dx, dy.
func (s *Session) Resize(corner placement.Corner, dx, dy float64) (viewstate.Placement, error) {
	return s.ctrl.Resize(corner, dx, dy)
}

// SetColor changes the garment colour.
func (s *Session) SetColor(c string) error {
	if err := s.store.SetColor(c); err != nil {
		s.notices.Post(notify.Warning, "Invalid colour "+c)
		return err
	}
	return nil
}

// Save persists the current design set. On success the uploaded views are
// switched to their durable references; on failure nothing changes and a
// notice is posted.
func (s *Session) Save(ctx context.Context, opts ...persist.SaveOption) (*persist.Result, error) {
	set, pending := s.store.Snapshot()

	res, err := s.coord.Save(ctx, s.ownerID, set, pending, opts...)
	switch {
	case errors.Is(err, persist.ErrSaveInProgress):
		s.notices.Post(notify.Warning, "A save is already in progress")
		return nil, err
	case errors.Is(err, persist.ErrDuplicateDeclined):
		s.notices.Post(notify.Info, "This design is already saved")
		return nil, err
	case err != nil:
		s.notices.Fail(err, "Failed to save design")
		return nil, err
	}

	s.store.CommitDurable(pending, res.Refs)
	return res, nil
}

// Load restores the locally saved design, if there is one.
func (s *Session) Load() bool {
	set, ok := s.coord.Load()
	if !ok {
		return false
	}
	s.store.Replace(*set)
	return true
}

// LoadRecord restores a stored record into the session.
func (s *Session) LoadRecord(ctx context.Context, id string) error {
	set, err := s.coord.LoadRecord(ctx, s.ownerID, id)
	if err != nil {
		s.notices.Fail(err, "Failed to load design")
		return err
	}
	s.store.Replace(*set)
	return nil
}

// List returns the owner's saved records, newest first.
func (s *Session) List(ctx context.Context) ([]*core.Record, error) {
	recs, err := s.coord.List(ctx, s.ownerID)
	if err != nil {
		s.notices.Fail(err, "Failed to fetch designs")
		return nil, err
	}
	return recs, nil
}

// Record returns one of the owner's saved records.
func (s *Session) Record(ctx context.Context, id string) (*core.Record, error) {
	return s.coord.Get(ctx, s.ownerID, id)
}

// Delete removes one of the owner's records.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.coord.Delete(ctx, s.ownerID, id); err != nil {
		s.notices.Fail(err, "Failed to delete design")
		return err
	}
	return nil
}

// ResolveLocal returns the bytes behind a local reference currently placed
// on one of this session's views.
func (s *Session) ResolveLocal(ref string) ([]byte, string, bool) {
	for _, v := range core.Views {
		if d, ok := s.store.Design(v); ok && d.Image.Local && d.Image.URL == ref {
			return s.ingester.Refs().Resolve(ref)
		}
	}
	return nil, "", false
}

// close releases the transient images of every view.
func (s *Session) close() {
	for _, v := range core.Views {
		s.store.RemoveDesign(v)
	}
}

// State returns a snapshot for display.
func (s *Session) State() State {
	st := State{
		Active:    s.store.Active(),
		Live:      s.store.Live(),
		Color:     s.store.Color(),
		Saving:    s.coord.Saving(),
		SaveState: s.coord.State().String(),
	}
	st.ColorName = core.ColorName(st.Color)
	for _, v := range core.Views {
		if d, ok := s.store.Design(v); ok {
			st.Designs[v] = &d
		}
	}
	if n, ok := s.notices.Current(); ok {
		st.Notice = &n
	}
	return st
}
