package environment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// Selection tracks the region one view is showing. Every Select issues a new
// token and cancels the load started by the previous one; a load that
// finishes under an outdated token is discarded and never committed.
type Selection struct {
	loader StateLoader

	mu     sync.Mutex
	token  string
	region region.Region
	cancel context.CancelFunc
	state  *AggregatedState
}

// NewSelection creates an empty selection.
func NewSelection(loader StateLoader) *Selection {
	return &Selection{loader: loader}
}

// Snapshot is the committed state of a selection.
type Snapshot struct {
	Token  string           `json:"token"`
	Region region.Region    `json:"region"`
	State  *AggregatedState `json:"state,omitempty"`
}

// Select switches the view to r and loads its state. It returns
// ErrSuperseded when another Select happened before the load finished.
func (s *Selection) Select(ctx context.Context, r region.Region) (AggregatedState, error) {
	token := uuid.NewString()
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token = token
	s.region = r
	s.cancel = cancel
	s.state = nil
	s.mu.Unlock()

	state, err := s.loader.GetAggregatedState(lctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		return AggregatedState{}, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return AggregatedState{}, err
	}
	s.state = &state
	return state, nil
}

// Current returns the committed selection. State is nil while a load is in
// flight or after it failed.
func (s *Selection) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Token: s.token, Region: s.region, State: s.state}
}

// Sessions keeps one Selection per client session.
type Sessions struct {
	loader StateLoader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	selection *Selection
	lastUsed  time.Time
}

// NewSessions creates a registry. Sessions unused for longer than ttl are
// dropped on the next lookup; ttl <= 0 keeps them forever.
func NewSessions(loader StateLoader, ttl time.Duration) *Sessions {
	return &Sessions{
		loader:   loader,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the selection for id, creating it on first use.
func (s *Sessions) Get(id string) *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expire(now)

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{selection: NewSelection(s.loader)}
		s.sessions[id] = sess
	}
	sess.lastUsed = now
	return sess.selection
}

// Lookup returns the selection for id without creating one.
func (s *Sessions) Lookup(id string) (*Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(s.now())
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.selection, true
}

func (s *Sessions) expire(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
