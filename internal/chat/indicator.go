package chat

import (
	"sync"
	"time"
)

// indicator advances the loading label on a fixed schedule: label i is shown at
// i*interval after start. Once stopped it never emits again.
type indicator struct {
	mu      sync.Mutex
	stopped bool
	timers  []*time.Timer
	emit    func(string)
}

func startIndicator(labels []string, interval time.Duration, emit func(string)) *indicator {
	ind := &indicator{emit: emit}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	for i, label := range labels {
		if i == 0 {
			emit(label)
			continue
		}
		label := label
		ind.timers = append(ind.timers, time.AfterFunc(time.Duration(i)*interval, func() {
			ind.fire(label)
		}))
	}
	return ind
}

func (ind *indicator) fire(label string) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.stopped {
		return
	}
	ind.emit(label)
}

// stop cancels pending labels. Safe to call more than once.
func (ind *indicator) stop() {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.stopped {
		return
	}
	ind.stopped = true
	for _, t := range ind.timers {
		t.Stop()
	}
}
