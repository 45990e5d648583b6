package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"labrelay/internal/domain"
)

// DefaultTimeout is how long a session survives without contact
const DefaultTimeout = 30 * time.Minute

// Status is whether the origin's agent answered its last liveness check
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// Session is a snapshot of one operator's record
type Session struct {
	Origin    string               `json:"origin"`
	Token     string               `json:"token"`
	Status    Status               `json:"status"`
	Devices   []domain.DeviceEntry `json:"instruments"`
	LastSeen  time.Time            `json:"last_seen"`
	CreatedAt time.Time            `json:"created_at"`
}

type entry struct {
	mu sync.Mutex
	s  Session
	// removed is set under mu when Sweep drops the entry from the map
	removed bool
}

func (e *entry) snapshot() Session {
	s := e.s
	s.Devices = append([]domain.DeviceEntry(nil), e.s.Devices...)
	return s
}

// Registry holds the sessions of every origin
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	timeout time.Duration
	now     func() time.Time
	bus     *EventBus
	log     zerolog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithTimeout sets the idle timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithEventBus publishes lifecycle events on bus
func WithEventBus(bus *EventBus) Option {
	return func(r *Registry) { r.bus = bus }
}

func NewRegistry(log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newToken() string {
	return uuid.NewString()[:8]
}

func (r *Registry) publish(t EventType, s Session) {
	if r.bus != nil {
		r.bus.Publish(Event{Type: t, At: r.now(), Session: s})
	}
}

// Touch creates the origin's session or refreshes its last-seen time.
// Idle sessions are swept first, so an expired origin gets a new session.
func (r *Registry) Touch(origin string) Session {
	now := r.now()
	r.Sweep(now)

	for {
		e, created := r.getOrCreate(origin, now)
		s, ok := r.refresh(e, created, now)
		if !ok {
			// swept between lookup and lock
			continue
		}
		if created {
			r.log.Info().Str("origin", origin).Str("token", s.Token).Msg("session created")
			r.publish(EventCreated, s)
		}
		return s
	}
}

// refresh bumps last-seen on a live entry. It fails once Sweep has removed e.
func (r *Registry) refresh(e *entry, created bool, now time.Time) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, false
	}
	if !created {
		if now.After(e.s.LastSeen) {
			e.s.LastSeen = now
		} else {
			e.s.LastSeen = e.s.LastSeen.Add(time.Nanosecond)
		}
	}
	return e.snapshot(), true
}

func (r *Registry) getOrCreate(origin string, now time.Time) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[origin]
	r.mu.RUnlock()
	if ok {
		return e, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[origin]; ok {
		return e, false
	}
	e = &entry{s: Session{
		Origin:    origin,
		Token:     newToken(),
		Status:    StatusDisconnected,
		Devices:   []domain.DeviceEntry{},
		LastSeen:  now,
		CreatedAt: now,
	}}
	r.entries[origin] = e
	return e, true
}

func (r *Registry) lookup(origin string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[origin]
	return e, ok
}

// Get returns the origin's session if it exists and has not gone idle
func (r *Registry) Get(origin string) (Session, bool) {
	e, ok := r.lookup(origin)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.expired(e.s, r.now()) {
		return Session{}, false
	}
	return e.snapshot(), true
}

// SetDevices replaces the origin's last discovered device list
func (r *Registry) SetDevices(origin string, devices []domain.DeviceEntry) (Session, bool) {
	return r.update(origin, func(s *Session) bool {
		s.Devices = append([]domain.DeviceEntry{}, devices...)
		return true
	})
}

// SetStatus records the result of a liveness check
func (r *Registry) SetStatus(origin string, status Status) (Session, bool) {
	return r.update(origin, func(s *Session) bool {
		if s.Status == status {
			return false
		}
		s.Status = status
		return true
	})
}

func (r *Registry) update(origin string, f func(*Session) bool) (Session, bool) {
	e, ok := r.lookup(origin)
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	changed := f(&e.s)
	s := e.snapshot()
	e.mu.Unlock()

	if changed {
		r.publish(EventUpdated, s)
	}
	return s, true
}

func (r *Registry) expired(s Session, now time.Time) bool {
	return now.Sub(s.LastSeen) > r.timeout
}

// Sweep removes sessions idle longer than the timeout and returns their origins
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.RLock()
	var stale []string
	for origin, e := range r.entries {
		e.mu.Lock()
		if r.expired(e.s, now) {
			stale = append(stale, origin)
		}
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	if len(stale) == 0 {
		return nil
	}

	var removed []Session
	r.mu.Lock()
	for _, origin := range stale {
		e, ok := r.entries[origin]
		if !ok {
			continue
		}
		e.mu.Lock()
		if r.expired(e.s, now) {
			delete(r.entries, origin)
			e.removed = true
			removed = append(removed, e.snapshot())
		}
		e.mu.Unlock()
	}
	r.mu.Unlock()

	origins := make([]string, 0, len(removed))
	for _, s := range removed {
		origins = append(origins, s.Origin)
		r.log.Info().Str("origin", s.Origin).Time("last_seen", s.LastSeen).Msg("session expired")
		r.publish(EventExpired, s)
	}
	return origins
}

// List snapshots every session, ordered by origin
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// Len is the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
