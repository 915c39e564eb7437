package websocket

import "github.com/reelfetch/reelfetch/internal/download"

// ProgressTracker turns download progress callbacks into hub broadcasts.
type ProgressTracker struct {
	hub *Hub
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(hub *Hub) *ProgressTracker {
	return &ProgressTracker{hub: hub}
}

// Func returns a download.ProgressFunc publishing under progressID, or nil
// when progressID is empty so the runner skips progress parsing entirely.
func (pt *ProgressTracker) Func(progressID string) download.ProgressFunc {
	if pt == nil || progressID == "" {
		return nil
	}
	return func(status string, percent float64) {
		pt.UpdateProgress(progressID, status, percent)
	}
}

// UpdateProgress sends a progress update for a download.
func (pt *ProgressTracker) UpdateProgress(progressID, status string, percent float64) {
	pt.hub.Broadcast(&ProgressMessage{
		Type:       MessageTypeProgress,
		ProgressID: progressID,
		Status:     status,
		Percent:    percent,
	})
}

// SendError sends a failure notification for a download.
func (pt *ProgressTracker) SendError(progressID, errorMsg string) {
	if pt == nil || progressID == "" {
		return
	}
	pt.hub.Broadcast(&ProgressMessage{
		Type:       MessageTypeProgress,
		ProgressID: progressID,
		Status:     download.StatusFailed,
		Error:      errorMsg,
	})
}
