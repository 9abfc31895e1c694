// timer/timer.go
package timer

import (
	"container/heap"
	"time"
)

// Scheduler runs callbacks after a delay. Implementations run every callback
// on a single goroutine, so callbacks never overlap.
type Scheduler interface {
	Now() time.Time
	AfterFunc(delay time.Duration, callback func()) int64
	Every(interval time.Duration, callback func()) int64
	Cancel(timerId int64)
}

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	if q[i].Execute.Equal(q[j].Execute) {
		return q[i].Id < q[j].Id
	}
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// timerHeap is the bookkeeping shared by Loop and ManualScheduler. It is not
// safe for concurrent use.
type timerHeap struct {
	queue  TimerQueue
	tasks  map[int64]*TimerTask
	nextId int64
}

func newTimerHeap() *timerHeap {
	h := &timerHeap{
		queue:  make(TimerQueue, 0),
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
	}
	heap.Init(&h.queue)
	return h
}

func (h *timerHeap) add(at time.Time, interval time.Duration, callback func()) int64 {
	task := &TimerTask{
		Id:       h.nextId,
		Execute:  at,
		Interval: interval,
		Callback: callback,
	}
	h.nextId++
	h.tasks[task.Id] = task
	heap.Push(&h.queue, task)
	return task.Id
}

func (h *timerHeap) remove(timerId int64) {
	task, ok := h.tasks[timerId]
	if !ok {
		return
	}
	delete(h.tasks, timerId)
	if task.index >= 0 {
		heap.Remove(&h.queue, task.index)
	}
}

// next returns the deadline of the earliest task.
func (h *timerHeap) next() (time.Time, bool) {
	if h.queue.Len() == 0 {
		return time.Time{}, false
	}
	return h.queue[0].Execute, true
}

// popDue removes the earliest task if it is due at now and returns it with the
// deadline it fired for. Repeating tasks are pushed back with their next
// deadline.
func (h *timerHeap) popDue(now time.Time) (*TimerTask, time.Time, bool) {
	if h.queue.Len() == 0 || h.queue[0].Execute.After(now) {
		return nil, time.Time{}, false
	}
	task := heap.Pop(&h.queue).(*TimerTask)
	firedAt := task.Execute
	if task.Interval > 0 {
		task.Execute = task.Execute.Add(task.Interval)
		heap.Push(&h.queue, task)
	} else {
		delete(h.tasks, task.Id)
	}
	return task, firedAt, true
}
