package reactor

import (
	"container/heap"
	"time"
)

// TimerCallback 定时器回调
type TimerCallback func(l *Loop, w *TimerWatcher)

// TimerWatcher 定时器。after 为首次触发的相对延迟，repeat > 0 时
// 周期触发，repeat == 0 为一次性定时器。
type TimerWatcher struct {
	KeyValueContext

	after  time.Duration
	repeat time.Duration
	cb     TimerCallback

	loop      *Loop
	active    bool
	fired     bool
	deadline  time.Time
	seq       uint64
	gen       uint64 // Start/Again 递增，已弹出的到期项据此失效
	heapIndex int
}

// NewTimer 创建定时器，after/repeat 不允许为负
func NewTimer(after, repeat time.Duration, cb TimerCallback) (*TimerWatcher, error) {
	if after < 0 || repeat < 0 {
		return nil, ErrInvalidInterval
	}
	if cb == nil {
		return nil, ErrNilCallback
	}

	return &TimerWatcher{
		after:     after,
		repeat:    repeat,
		cb:        cb,
		heapIndex: -1,
	}, nil
}

// Active ...
func (w *TimerWatcher) Active() bool {
	return w.active
}

// Repeat ...
func (w *TimerWatcher) Repeat() time.Duration {
	return w.repeat
}

// Start 以 now + after 为 deadline 调度。回调内重新 Start 自身视为
// 全新调度，下一轮迭代起生效。
func (w *TimerWatcher) Start(l *Loop) error {
	if w.active {
		if w.loop == l {
			return nil
		}
		return ErrAlreadyActive
	}
	if l.closed.Get() {
		return ErrLoopClosed
	}

	w.loop = l
	w.active = true
	w.fired = false
	w.gen++
	l.timerCount++
	l.schedule(w, l.now.Add(w.after))
	return nil
}

// Again 重置 deadline：周期定时器触发过后取 now + repeat，否则取 now + after。
// 未激活的 watcher 会被激活。用于刷新空闲/心跳定时器，省去 Stop/Start。
func (w *TimerWatcher) Again(l *Loop) error {
	if w.active && w.loop != l {
		return ErrAlreadyActive
	}
	if l.closed.Get() {
		return ErrLoopClosed
	}

	d := w.after
	if w.fired && w.repeat > 0 {
		d = w.repeat
	}

	if w.active {
		if w.heapIndex >= 0 {
			heap.Remove(&l.timers, w.heapIndex)
		}
	} else {
		w.loop = l
		w.active = true
		l.timerCount++
	}

	w.gen++
	l.schedule(w, l.now.Add(d))
	return nil
}

// Stop 取消调度。已到期但尚未触发的回调也随之作废。
func (w *TimerWatcher) Stop() error {
	if !w.active {
		return ErrNotActive
	}

	l := w.loop
	if w.heapIndex >= 0 {
		heap.Remove(&l.timers, w.heapIndex)
	}
	l.deactivateTimer(w)
	return nil
}

func (l *Loop) schedule(t *TimerWatcher, deadline time.Time) {
	l.timerSeq++
	t.seq = l.timerSeq
	t.deadline = deadline
	heap.Push(&l.timers, t)
}

func (l *Loop) deactivateTimer(t *TimerWatcher) {
	t.active = false
	t.loop = nil
	l.timerCount--
}

// timerQueue 按 (deadline, seq) 排序的最小堆，seq 保证同一 deadline
// 按调度顺序触发
type timerQueue struct {
	items []*TimerWatcher
}

func (q *timerQueue) peek() (*TimerWatcher, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

func (q *timerQueue) Len() int { return len(q.items) }

func (q *timerQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

func (q *timerQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].heapIndex = i
	q.items[j].heapIndex = j
}

func (q *timerQueue) Push(x interface{}) {
	t := x.(*TimerWatcher)
	t.heapIndex = len(q.items)
	q.items = append(q.items, t)
}

func (q *timerQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	q.items = old[:n-1]
	return t
}
