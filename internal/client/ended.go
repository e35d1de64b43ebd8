package client

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// EndedDisplayWindow is how long the ended flag stays raised without a new alert.
const EndedDisplayWindow = 120 * time.Second

// EndWatcher raises a one-shot flag when the selected area goes from having an
// active record to having none. It is driven from a single tick loop and is not
// safe for concurrent use.
type EndWatcher struct {
	clock     clockwork.Clock
	selection string
	hadAlert  bool
	ended     bool
	endedAt   time.Time
}

func NewEndWatcher(clock clockwork.Clock) *EndWatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EndWatcher{clock: clock}
}

// Observe feeds one tick and returns whether the ended flag is raised.
func (w *EndWatcher) Observe(selection string, active bool) bool {
	if selection != w.selection {
		w.selection = selection
		w.hadAlert = false
		w.ended = false
	}

	switch {
	case active:
		w.ended = false
	case w.hadAlert:
		w.ended = true
		w.endedAt = w.clock.Now()
	case w.ended && w.clock.Since(w.endedAt) >= EndedDisplayWindow:
		w.ended = false
	}
	w.hadAlert = active

	return w.ended
}

func (w *EndWatcher) Ended() bool {
	return w.ended
}
