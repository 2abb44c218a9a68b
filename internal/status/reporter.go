// Package status tracks the progress of a crawl run and broadcasts snapshots
// to subscribers such as the live status stream.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors are capped so a failing run cannot grow the snapshot without bound.
const maxErrors = 200

// CrawlError records one failure during a run, with the context it happened in.
type CrawlError struct {
	Context    string    `json:"context"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is a point-in-time view of crawl progress.
type Snapshot struct {
	Updating   bool         `json:"updating"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Artists    int          `json:"artists"`
	Albums     int          `json:"albums"`
	Pages      int          `json:"pages"`
	Errors     []CrawlError `json:"errors"`
}

// Reporter accumulates counters for the current run and fans snapshots out to
// subscribers. All methods are safe for concurrent use.
type Reporter struct {
	mu         sync.RWMutex
	updating   bool
	startedAt  time.Time
	finishedAt time.Time
	artists    int
	albums     int
	pages      int
	errors     []CrawlError
	subs       map[string]chan Snapshot
	logger     *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{
		subs:   make(map[string]chan Snapshot),
		logger: logger.With(slog.String("component", "status")),
	}
}

// Begin resets the counters and marks a run as started.
func (r *Reporter) Begin() {
	r.mu.Lock()
	r.updating = true
	r.startedAt = time.Now().UTC()
	r.finishedAt = time.Time{}
	r.artists = 0
	r.albums = 0
	r.pages = 0
	r.errors = nil
	r.mu.Unlock()
	r.broadcast()
}

// Finish marks the run as done. Counters stay readable until the next Begin.
func (r *Reporter) Finish() {
	r.mu.Lock()
	r.updating = false
	r.finishedAt = time.Now().UTC()
	r.mu.Unlock()
	r.broadcast()
}

// IsUpdating reports whether a run is in progress.
func (r *Reporter) IsUpdating() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updating
}

// AddArtist counts one processed artist.
func (r *Reporter) AddArtist() {
	r.mu.Lock()
	r.artists++
	r.mu.Unlock()
	r.broadcast()
}

// AddAlbums counts processed albums.
func (r *Reporter) AddAlbums(n int) {
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.albums += n
	r.mu.Unlock()
	r.broadcast()
}

// AddPage counts one fetched page.
func (r *Reporter) AddPage() {
	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
	r.broadcast()
}

// AddError records a failure without interrupting the run.
func (r *Reporter) AddError(context string, err error) {
	r.mu.Lock()
	if len(r.errors) < maxErrors {
		r.errors = append(r.errors, CrawlError{
			Context:    context,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
	}
	r.mu.Unlock()
	r.broadcast()
}

// Snapshot returns the current progress.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() Snapshot {
	s := Snapshot{
		Updating: r.updating,
		Artists:  r.artists,
		Albums:   r.albums,
		Pages:    r.pages,
		Errors:   make([]CrawlError, len(r.errors)),
	}
	copy(s.Errors, r.errors)
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Subscribe registers a snapshot listener. The current snapshot is delivered
// immediately so new subscribers never start blank. Callers must Unsubscribe
// with the returned id when done.
func (r *Reporter) Subscribe() (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, 8)

	r.mu.Lock()
	r.subs[id] = ch
	ch <- r.snapshotLocked()
	r.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (r *Reporter) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(ch)
	}
}

// broadcast delivers the current snapshot to every subscriber. Slow
// subscribers miss intermediate snapshots rather than blocking the run.
func (r *Reporter) broadcast() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.snapshotLocked()
	for id, ch := range r.subs {
		select {
		case ch <- s:
		default:
			r.logger.Debug("subscriber behind, dropping snapshot", slog.String("id", id))
		}
	}
}
