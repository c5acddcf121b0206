// omp-launcher/provision/progress.go
package provision

import "sync"

// Progress of the current download attempt.
type Progress struct {
	BytesReceived uint64  `json:"bytesReceived"`
	BytesTotal    uint64  `json:"bytesTotal"`
	Percent       float64 `json:"percent"`
}

type progressTracker struct {
	mu  sync.Mutex
	cur Progress
}

func (t *progressTracker) reset() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Progress{}
	return t.cur
}

// add accumulates a chunk. Negative deltas are ignored so BytesReceived never decreases.
func (t *progressTracker) add(delta, total int64) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if delta > 0 {
		t.cur.BytesReceived += uint64(delta)
	}
	if total > 0 {
		t.cur.BytesTotal = uint64(total)
	}
	if t.cur.BytesTotal > 0 {
		pct := float64(t.cur.BytesReceived) * 100 / float64(t.cur.BytesTotal)
		if pct > 100 {
			pct = 100
		}
		t.cur.Percent = pct
	}
	return t.cur
}

func (t *progressTracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
