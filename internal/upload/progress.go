package upload

import (
	"math"
	"sync"
	"time"

	"github.com/amillerrr/courtside/pkg/models"
)

// Progress milestones on the unified 0-100 indicator.
const (
	TransferCeiling = 90
	Finished        = 100
)

// TransferPercent scales transferred/total onto [0, TransferCeiling].
func TransferPercent(transferred, total int64) int {
	if total <= 0 || transferred <= 0 {
		return 0
	}
	p := int(math.Round(float64(transferred) / float64(total) * TransferCeiling))
	return min(max(p, 0), TransferCeiling)
}

// Tracker reports a monotonically non-decreasing percentage.
// Transfer callbacks may arrive from another goroutine.
type Tracker struct {
	mu      sync.Mutex
	percent int
	started bool
	emit    func(percent int)
}

// NewTracker creates a Tracker that calls emit on every change.
func NewTracker(emit func(percent int)) *Tracker {
	if emit == nil {
		emit = func(int) {}
	}
	return &Tracker{emit: emit}
}

// Start reports 0.
func (t *Tracker) Start() {
	t.advance(0, TransferCeiling)
}

// Transfer reports bytes moved for the video asset.
func (t *Tracker) Transfer(transferred, total int64) {
	t.advance(TransferPercent(transferred, total), TransferCeiling)
}

// TransferDone reports the end of the video transfer.
func (t *Tracker) TransferDone() {
	t.advance(TransferCeiling, TransferCeiling)
}

// Finish reports 100. Call only after the record is finalized.
func (t *Tracker) Finish() {
	t.advance(Finished, Finished)
}

// Percent returns the last reported value.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

func (t *Tracker) advance(p, ceiling int) {
	p = min(max(p, 0), ceiling)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started && p <= t.percent {
		return
	}
	t.started = true
	t.percent = p
	// Emitting under the lock keeps observers in order.
	t.emit(p)
}

// Snapshot is the progress of one game's upload.
type Snapshot struct {
	GameID    string              `json:"gameId"`
	Percent   int                 `json:"percent"`
	Status    models.UploadStatus `json:"status"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Registry holds in-flight and recently finished upload progress in memory.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates a Registry that keeps finished entries for retention.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Registry{
		snapshots: make(map[string]Snapshot),
		retention: retention,
		now:       time.Now,
	}
}

// Report records percent for a game still uploading.
func (r *Registry) Report(gameID string, percent int) {
	r.put(Snapshot{GameID: gameID, Percent: percent, Status: models.StatusUploading})
}

// Finish records the terminal status of a game's upload.
func (r *Registry) Finish(gameID string, status models.UploadStatus) {
	r.mu.RLock()
	percent := r.snapshots[gameID].Percent
	r.mu.RUnlock()

	if status == models.StatusCompleted {
		percent = Finished
	}
	r.put(Snapshot{GameID: gameID, Percent: percent, Status: status})
}

// Get returns the snapshot for gameID.
func (r *Registry) Get(gameID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[gameID]
	return s, ok
}

func (r *Registry) put(s Snapshot) {
	now := r.now()
	s.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.GameID] = s

	// Drop finished entries past retention.
	for id, old := range r.snapshots {
		if old.Status.IsTerminal() && now.Sub(old.UpdatedAt) > r.retention {
			delete(r.snapshots, id)
		}
	}
}
