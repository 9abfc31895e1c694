package timer

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLoopClosed = errors.New("loop closed")

// Loop is a serialized execution context. Posted functions and timer
// callbacks all run on the goroutine that calls Run, one at a time.
type Loop struct {
	tasks chan func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once

	mutex  sync.Mutex
	timers *timerHeap
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks:  make(chan func(), buffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		timers: newTimerHeap(),
	}
}

// Post queues fn to run on the loop. It reports false once the loop has
// stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) AfterFunc(delay time.Duration, callback func()) int64 {
	return l.addTimer(delay, 0, callback)
}

func (l *Loop) Every(interval time.Duration, callback func()) int64 {
	return l.addTimer(interval, interval, callback)
}

func (l *Loop) addTimer(delay, interval time.Duration, callback func()) int64 {
	l.mutex.Lock()
	id := l.timers.add(time.Now().Add(delay), interval, callback)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return id
}

func (l *Loop) Cancel(timerId int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.timers.remove(timerId)
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run executes posted functions and due timers until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	alarm := time.NewTimer(time.Hour)
	alarm.Stop()
	defer alarm.Stop()

	for {
		l.runDue()

		l.mutex.Lock()
		deadline, ok := l.timers.next()
		l.mutex.Unlock()
		if ok {
			alarm.Reset(time.Until(deadline))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		case <-l.wake:
		case <-alarm.C:
		}
		alarm.Stop()
	}
}

func (l *Loop) runDue() {
	now := time.Now()
	for {
		l.mutex.Lock()
		task, _, ok := l.timers.popDue(now)
		l.mutex.Unlock()
		if !ok {
			return
		}
		task.Callback()
	}
}
