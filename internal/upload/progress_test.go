package upload

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amillerrr/courtside/pkg/models"
)

func TestTransferPercent(t *testing.T) {
	tests := []struct {
		transferred, total int64
		want               int
	}{
		{0, 100, 0},
		{50, 100, 45},
		{100, 100, 90},
		{150, 100, 90},
		{1, 3, 30},
		{10, 0, 0},
		{-5, 100, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TransferPercent(tt.transferred, tt.total), "%d/%d", tt.transferred, tt.total)
	}
}

func TestTracker_Monotonic(t *testing.T) {
	var got []int
	tr := NewTracker(func(p int) { got = append(got, p) })

	tr.Start()
	tr.Transfer(50, 100)
	tr.Transfer(20, 100) // rewind after a retry is ignored
	tr.Transfer(50, 100) // duplicate is not emitted
	tr.Transfer(100, 100)
	tr.TransferDone()
	tr.Finish()
	tr.Transfer(10, 100)

	assert.Equal(t, []int{0, 45, 90, 100}, got)
	assert.Equal(t, 100, tr.Percent())
}

func TestTracker_TransferNeverReaches100(t *testing.T) {
	tr := NewTracker(nil)
	tr.Transfer(1<<40, 1)
	assert.Equal(t, TransferCeiling, tr.Percent())
}

func TestTracker_Concurrent(t *testing.T) {
	var mu sync.Mutex
	var got []int
	tr := NewTracker(func(p int) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := int64(0); i <= 100; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			tr.Transfer(n, 100)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	assert.Equal(t, TransferCeiling, tr.Percent())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, ok := r.Get("g1")
	assert.False(t, ok)

	r.Report("g1", 45)
	snap, ok := r.Get("g1")
	require.True(t, ok)
	assert.Equal(t, 45, snap.Percent)
	assert.Equal(t, models.StatusUploading, snap.Status)

	r.Finish("g1", models.StatusFailed)
	snap, _ = r.Get("g1")
	assert.Equal(t, 45, snap.Percent)
	assert.Equal(t, models.StatusFailed, snap.Status)

	r.Report("g2", 10)
	r.Finish("g2", models.StatusCompleted)
	snap, _ = r.Get("g2")
	assert.Equal(t, Finished, snap.Percent)

	// Finished entries expire on the next write after retention.
	now = now.Add(2 * time.Minute)
	r.Report("g3", 0)
	_, ok = r.Get("g1")
	assert.False(t, ok)
	_, ok = r.Get("g3")
	assert.True(t, ok)
}
