package timer

import "time"

// ManualScheduler is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run on the goroutine calling Advance.
type ManualScheduler struct {
	now    time.Time
	timers *timerHeap
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		now:    time.Unix(0, 0),
		timers: newTimerHeap(),
	}
}

func (s *ManualScheduler) Now() time.Time {
	return s.now
}

func (s *ManualScheduler) AfterFunc(delay time.Duration, callback func()) int64 {
	return s.timers.add(s.now.Add(delay), 0, callback)
}

func (s *ManualScheduler) Every(interval time.Duration, callback func()) int64 {
	return s.timers.add(s.now.Add(interval), interval, callback)
}

func (s *ManualScheduler) Cancel(timerId int64) {
	s.timers.remove(timerId)
}

// Pending is the number of scheduled timers.
func (s *ManualScheduler) Pending() int {
	return s.timers.queue.Len()
}

// Advance moves the clock forward by d, running every timer that falls due in
// deadline order. The clock reads each timer's deadline while it runs.
func (s *ManualScheduler) Advance(d time.Duration) {
	end := s.now.Add(d)
	for {
		task, firedAt, ok := s.timers.popDue(end)
		if !ok {
			break
		}
		if firedAt.After(s.now) {
			s.now = firedAt
		}
		task.Callback()
	}
	s.now = end
}
