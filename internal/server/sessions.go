package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"foneai-widget/internal/chat"
)

type sessionEntry struct {
	ctl      *chat.Controller
	lastSeen time.Time
}

// sessions maps session ids to their controllers. An idle controller not used
// for ttl is evicted by sweep.
type sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	newController func(chat.Session) *chat.Controller
	// resumable reports whether an id unknown to this process still has a
	// transcript worth continuing.
	resumable func(ctx context.Context, id string) bool
	onEvict   func(id string)
}

// acquire returns the controller for id, creating one when id is empty,
// malformed or unknown.
func (s *sessions) acquire(ctx context.Context, id string) *chat.Controller {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.lastSeen = s.now()
		s.mu.Unlock()
		return e.ctl
	}
	s.mu.Unlock()

	session := chat.NewSession()
	if chat.ValidSessionID(id) && s.resumable != nil && s.resumable(ctx, id) {
		session = chat.ResumeSession(id)
		s.logger.Debug("resuming session", zap.String("session", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[session.ID()]; ok {
		e.lastSeen = s.now()
		return e.ctl
	}
	ctl := s.newController(session)
	s.entries[session.ID()] = &sessionEntry{ctl: ctl, lastSeen: s.now()}
	s.logger.Info("session started", zap.String("session", session.ID()))
	return ctl
}

func (s *sessions) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep evicts idle controllers past their ttl. A controller with a turn in
// flight is never evicted.
func (s *sessions) sweep() []string {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var evicted []string
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) && e.ctl.State() == chat.StateIdle {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.logger.Info("session evicted", zap.String("session", id))
		if s.onEvict != nil {
			s.onEvict(id)
		}
	}
	return evicted
}

// janitor sweeps until ctx is done.
func (s *sessions) janitor(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	every := s.ttl / 2
	if every > time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
