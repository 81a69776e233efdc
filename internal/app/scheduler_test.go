package app

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type firingLog struct {
	mu    sync.Mutex
	fires []int
}

func (l *firingLog) record(_ string, questionIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fires = append(l.fires, questionIndex)
}

func (l *firingLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.fires...)
}

func TestSchedulerFiresArmedTrigger(t *testing.T) {
	clock := clockwork.NewFakeClock()
	log := &firingLog{}
	sched := newScheduler(clock, log.record)

	sched.Arm("room-1", 0, 5*time.Second)
	clock.Advance(5 * time.Second)

	waitFor(t, "trigger to fire", func() bool {
		return len(log.snapshot()) == 1
	})
	if fires := log.snapshot(); fires[0] != 0 {
		t.Fatalf("expected fire for question 0, got %v", fires)
	}
}

func TestSchedulerSupersededTriggerIsNoOp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	log := &firingLog{}
	sched := newScheduler(clock, log.record)

	// Re-arming for the next question supersedes the question 0 trigger even
	// though its deferred callback still runs.
	sched.Arm("room-1", 0, 5*time.Second)
	sched.Arm("room-1", 1, 5*time.Second)
	clock.Advance(5 * time.Second)

	waitFor(t, "superseding trigger to fire", func() bool {
		return len(log.snapshot()) >= 1
	})
	time.Sleep(20 * time.Millisecond)
	fires := log.snapshot()
	if len(fires) != 1 || fires[0] != 1 {
		t.Fatalf("expected single fire for question 1, got %v", fires)
	}
}

func TestSchedulerDisarm(t *testing.T) {
	clock := clockwork.NewFakeClock()
	log := &firingLog{}
	sched := newScheduler(clock, log.record)

	sched.Arm("room-1", 0, 5*time.Second)
	sched.Disarm("room-1")
	clock.Advance(5 * time.Second)

	time.Sleep(20 * time.Millisecond)
	if fires := log.snapshot(); len(fires) != 0 {
		t.Fatalf("disarmed trigger must not fire, got %v", fires)
	}
}
