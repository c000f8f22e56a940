// Package persist saves and restores design sets: it deduplicates assets,
// uploads them, writes the composite record and mirrors it to a local slot.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tshirt-designer/contenthash"
	"tshirt-designer/core"
)

// DefaultLocalKey is the local slot used for the last saved design.
const DefaultLocalKey = "savedDesign"

var (
	// ErrSaveInProgress is returned when Save is called while another save
	// is running. The call has no effect.
	ErrSaveInProgress = errors.New("a save is already in progress")

	// ErrDuplicateDeclined is returned when an identical record already
	// exists and the duplicate policy declined to write another.
	ErrDuplicateDeclined = errors.New("an identical design is already saved")
)

// State is the phase of the save currently running.
type State int32

const (
	Idle State = iota
	Hashing
	DedupCheck
	Uploading
	Writing
)

func (s State) String() string {
	switch s {
	case Hashing:
		return "hashing"
	case DedupCheck:
		return "dedup-check"
	case Uploading:
		return "uploading"
	case Writing:
		return "writing"
	}
	return "idle"
}

type (
	// Result describes a successful save.
	Result struct {
		RecordID string
		Hash     string
		Design   core.DesignSet
		// Refs holds the durable reference of every view that had a pending asset.
		Refs [core.NumViews]core.ImageRef
		// Uploads is the number of upload calls issued.
		Uploads int
	}

	Coordinator struct {
		docs     core.DocumentStore
		uploader core.AssetUploader
		local    *Fallback
		localKey string
		policy   DuplicatePolicy

		busy  atomic.Bool
		state atomic.Int32
	}

	Option func(*Coordinator)

	SaveOption func(*saveOptions)

	saveOptions struct {
		policy DuplicatePolicy
	}
)

// WithDuplicatePolicy sets the default policy for saves that would duplicate
// an existing record.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithLocalKey overrides DefaultLocalKey.
func WithLocalKey(key string) Option {
	return func(c *Coordinator) { c.localKey = key }
}

// UsePolicy overrides the duplicate policy for a single save.
func UsePolicy(p DuplicatePolicy) SaveOption {
	return func(o *saveOptions) { o.policy = p }
}

func NewCoordinator(docs core.DocumentStore, uploader core.AssetUploader, local *Fallback, opts ...Option) *Coordinator {
	if local == nil {
		local = NewFallback(nil)
	}
	c := &Coordinator{
		docs:     docs,
		uploader: uploader,
		local:    local,
		localKey: DefaultLocalKey,
		policy:   AlwaysSave(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the phase of the running save, or Idle.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Saving reports whether a save is in flight.
func (c *Coordinator) Saving() bool {
	return c.busy.Load()
}

// Save persists set for ownerID. Each distinct pending asset is uploaded
// once, every local reference is replaced by its durable one, and only then
// is the record written. On failure nothing is written and the caller's
// state is untouched, so the save can be retried.
func (c *Coordinator) Save(ctx context.Context, ownerID string, set core.DesignSet, pending core.PendingAssets, opts ...SaveOption) (*Result, error) {
	const op = "save"
	log := logrus.WithField("owner_id", ownerID)

	if !c.busy.CompareAndSwap(false, true) {
		log.Warn("Save rejected, another save is in progress")
		return nil, ErrSaveInProgress
	}
	defer func() {
		c.state.Store(int32(Idle))
		c.busy.Store(false)
	}()

	o := saveOptions{policy: c.policy}
	for _, opt := range opts {
		opt(&o)
	}

	c.state.Store(int32(Hashing))
	if err := set.Validate(); err != nil {
		return nil, core.E(core.PersistenceFailure, op, err)
	}
	hash := contenthash.DesignSet(set)
	log = log.WithField("hash", hash)

	c.state.Store(int32(DedupCheck))
	existing, found, err := c.docs.QueryByHash(ctx, ownerID, hash)
	if err != nil {
		log.WithError(err).Error("Failed to query existing designs")
		return nil, core.E(core.PersistenceFailure, op, err)
	}
	if found {
		proceed, err := o.policy.decide(ctx, existing)
		if err != nil {
			return nil, core.E(core.PersistenceFailure, op, err)
		}
		if !proceed {
			log.WithField("existing_id", existing).Info("Identical design already saved, save declined")
			return nil, ErrDuplicateDeclined
		}
		log.WithField("existing_id", existing).Info("Identical design already saved, saving anyway")
	}

	c.state.Store(int32(Uploading))
	refs, uploads, err := c.uploadPending(ctx, set, pending)
	if err != nil {
		log.WithError(err).Error("Failed to upload design assets")
		return nil, core.E(core.PersistenceFailure, op, err)
	}

	final := set.Clone()
	for _, v := range core.Views {
		d := final.Designs[v]
		if d == nil {
			continue
		}
		if pending[v] != nil {
			d.Image = refs[v]
		}
		if d.Image.Local {
			return nil, core.E(core.PersistenceFailure, op, fmt.Errorf("view %s has a local image without a pending asset", v))
		}
	}

	// the record is keyed by the hash of what is stored, which is what a
	// later load reproduces
	hash = contenthash.DesignSet(final)
	log = log.WithField("hash", hash)

	c.state.Store(int32(Writing))
	id, err := c.docs.Write(ctx, ownerID, final, hash)
	if err != nil {
		log.WithError(err).Error("Failed to write design record")
		return nil, core.E(core.PersistenceFailure, op, err)
	}

	c.mirror(final)

	log.WithFields(logrus.Fields{"record_id": id, "uploads": uploads}).Info("Design saved successfully")
	return &Result{RecordID: id, Hash: hash, Design: final, Refs: refs, Uploads: uploads}, nil
}

// uploadPending uploads every distinct pending asset concurrently. Assets
// with identical bytes share one upload and one durable reference.
func (c *Coordinator) uploadPending(ctx context.Context, set core.DesignSet, pending core.PendingAssets) ([core.NumViews]core.ImageRef, int, error) {
	var refs [core.NumViews]core.ImageRef

	type job struct {
		asset  *core.Asset
		digest string
		url    string
	}
	var jobs []*job
	byDigest := make(map[string]*job)
	var viewJob [core.NumViews]*job

	for _, v := range core.Views {
		a := pending[v]
		if a == nil || set.Designs[v] == nil {
			continue
		}
		digest := contenthash.Bytes(a.Data)
		j, ok := byDigest[digest]
		if !ok {
			j = &job{asset: a, digest: digest}
			byDigest[digest] = j
			jobs = append(jobs, j)
		}
		viewJob[v] = j
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			url, err := c.uploader.Upload(gctx, j.asset.Data, j.asset.MIMEType)
			if err != nil {
				if core.KindOf(err) == core.KindUnknown {
					err = core.E(core.UploadFailed, "upload", err)
				}
				return err
			}
			j.url = url
			logrus.WithFields(logrus.Fields{"digest": j.digest, "url": url}).Debug("Asset uploaded")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return refs, 0, err
	}

	for _, v := range core.Views {
		if j := viewJob[v]; j != nil {
			refs[v] = core.ImageRef{URL: j.url, Digest: j.digest}
		}
	}
	return refs, len(jobs), nil
}

func (c *Coordinator) mirror(set core.DesignSet) {
	data, err := json.Marshal(set)
	if err != nil {
		logrus.WithError(err).Warn("Failed to serialize design for the local fallback")
		return
	}
	c.local.Put(c.localKey, data)
}

// Load returns the design last mirrored to the local slot. A missing or
// corrupt payload yields false and is never an error.
func (c *Coordinator) Load() (*core.DesignSet, bool) {
	data, ok := c.local.Get(c.localKey)
	if !ok {
		logrus.WithField("key", c.localKey).Debug("No saved design in the local fallback")
		return nil, false
	}

	set, err := Decode(data)
	if err != nil {
		logrus.WithError(err).WithField("key", c.localKey).Warn("Ignoring corrupt saved design")
		return nil, false
	}
	return set, true
}

// LoadRecord fetches a stored record and makes it the locally saved design.
func (c *Coordinator) LoadRecord(ctx context.Context, ownerID, id string) (*core.DesignSet, error) {
	rec, err := c.docs.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := rec.Design.Validate(); err != nil {
		return nil, core.E(core.PersistenceFailure, "load record", err)
	}
	c.mirror(rec.Design)
	set := rec.Design.Clone()
	return &set, nil
}

// Get returns one of the owner's records without touching the local slot.
func (c *Coordinator) Get(ctx context.Context, ownerID, id string) (*core.Record, error) {
	return c.docs.Get(ctx, ownerID, id)
}

// List returns the owner's records, newest first.
func (c *Coordinator) List(ctx context.Context, ownerID string) ([]*core.Record, error) {
	return c.docs.ListByOwner(ctx, ownerID)
}

// Delete removes one of the owner's records.
func (c *Coordinator) Delete(ctx context.Context, ownerID, id string) error {
	return c.docs.Delete(ctx, ownerID, id)
}

// Decode parses and validates a serialized DesignSet.
func Decode(data []byte) (*core.DesignSet, error) {
	var set core.DesignSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}
