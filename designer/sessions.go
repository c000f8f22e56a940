package designer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tshirt-designer/contenthash"
	"tshirt-designer/core"
	"tshirt-designer/ingest"
	"tshirt-designer/notify"
	"tshirt-designer/persist"
	"tshirt-designer/viewstate"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Ingester        *ingest.Ingester
	Docs            core.DocumentStore
	Assets          core.AssetUploader
	Local           *persist.Fallback
	RemovePolicy    viewstate.RemovePolicy
	DuplicatePolicy persist.DuplicatePolicy
	NoticeTTL       time.Duration

	// IdleTTL is how long an unused session is kept. Zero keeps sessions
	// for the lifetime of the process.
	IdleTTL time.Duration
}

// Sessions creates one Session per owner on first use. Sessions idle for
// longer than Deps.IdleTTL are dropped by Sweep; unsaved edits go with them
// and the next Get restores the owner's locally saved design.
type Sessions struct {
	mu       sync.Mutex
	deps     Deps
	now      func() time.Time
	sessions map[string]*Session
	lastSeen map[string]time.Time
}

func NewSessions(deps Deps) *Sessions {
	if deps.Ingester == nil {
		deps.Ingester = ingest.New(ingest.NewLocalRefs())
	}
	if deps.Local == nil {
		deps.Local = persist.NewFallback(nil)
	}
	if deps.NoticeTTL <= 0 {
		deps.NoticeTTL = notify.DefaultTTL
	}
	return &Sessions{
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
	}
}

// Get returns the owner's session, creating it if needed. A new session
// starts from the owner's locally saved design when there is one.
func (r *Sessions) Get(ownerID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen[ownerID] = r.now()
	if s, ok := r.sessions[ownerID]; ok {
		return s
	}

	store := viewstate.NewStore(r.deps.Ingester.Refs(), viewstate.WithRemovePolicy(r.deps.RemovePolicy))
	coord := persist.NewCoordinator(r.deps.Docs, r.deps.Assets, r.deps.Local,
		persist.WithDuplicatePolicy(r.deps.DuplicatePolicy),
		persist.WithLocalKey(LocalKey(ownerID)),
	)
	s := NewSession(ownerID, store, r.deps.Ingester, coord, notify.NewBoard(notify.WithTTL(r.deps.NoticeTTL)))
	r.sessions[ownerID] = s

	restored := s.Load()
	logrus.WithFields(logrus.Fields{"owner_id": ownerID, "restored": restored}).Info("Session created")
	return s
}

// Sweep drops sessions unused for longer than the idle TTL and releases
// their transient images. Sessions with a save in flight are kept. It
// returns the number of sessions dropped.
func (r *Sessions) Sweep() int {
	if r.deps.IdleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	var idle []*Session
	cutoff := r.now().Add(-r.deps.IdleTTL)
	for owner, s := range r.sessions {
		if r.lastSeen[owner].After(cutoff) || s.coord.Saving() {
			continue
		}
		delete(r.sessions, owner)
		delete(r.lastSeen, owner)
		idle = append(idle, s)
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
		logrus.WithField("owner_id", s.OwnerID()).Info("Idle session dropped")
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	if r.deps.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// LocalKey is the local fallback slot of an owner. Owner ids are hashed so
// the key is always a safe file name.
func LocalKey(ownerID string) string {
	return persist.DefaultLocalKey + "-" + contenthash.Bytes([]byte(ownerID))[:16]
}
