package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// scheduler arms one deferred advance per room. The (roomID, questionIndex)
// pair captured at arm time is the staleness token: it is checked against the
// armed map when the timer fires, and Session.Advance re-validates it against
// live state, so a superseded trigger is a silent no-op rather than a
// double-advance.
type scheduler struct {
	clock clockwork.Clock
	fire  func(roomID string, questionIndex int)

	mu    sync.Mutex
	armed map[string]int
}

func newScheduler(clock clockwork.Clock, fire func(roomID string, questionIndex int)) *scheduler {
	return &scheduler{
		clock: clock,
		fire:  fire,
		armed: make(map[string]int),
	}
}

// Arm supersedes any outstanding trigger for the room and defers an advance
// of questionIndex by d.
func (s *scheduler) Arm(roomID string, questionIndex int, d time.Duration) {
	s.mu.Lock()
	s.armed[roomID] = questionIndex
	s.mu.Unlock()

	s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.armed[roomID]
		if !ok || current != questionIndex {
			s.mu.Unlock()
			log.Debug().Str("room_id", roomID).Int("question", questionIndex).Msg("stale round trigger ignored")
			return
		}
		delete(s.armed, roomID)
		s.mu.Unlock()

		log.Debug().Str("room_id", roomID).Int("question", questionIndex).Msg("round timer fired")
		s.fire(roomID, questionIndex)
	})
}

// Disarm clears the outstanding trigger token for a room. The deferred
// callback still runs but finds no token and does nothing.
func (s *scheduler) Disarm(roomID string) {
	s.mu.Lock()
	delete(s.armed, roomID)
	s.mu.Unlock()
}
