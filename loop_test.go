package reactor

import (
	"testing"
	"time"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/stretchr/testify/assert"
)

func newLoop(t *testing.T) *Loop {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRunDefaultNoWatchers(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	start := time.Now()
	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}

	assert.True(t, time.Since(start) < 100*time.Millisecond)
	assert.Equal(t, uint64(0), l.Iteration())
}

// 空 loop 上 RunOnce/RunNoWait 以零超时 poll 一轮后立即返回
func TestRunOnceNoWatchers(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	start := time.Now()
	if err := l.Run(RunOnce); err != nil {
		t.Fatal(err)
	}
	if err := l.Run(RunNoWait); err != nil {
		t.Fatal(err)
	}

	assert.True(t, time.Since(start) < 100*time.Millisecond)
	assert.Equal(t, uint64(2), l.Iteration())
}

func TestIterationCounter(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if err := l.Run(RunNoWait); err != nil {
			t.Fatal(err)
		}
	}

	assert.Equal(t, uint64(3), l.Iteration())
}

func TestQueueInLoop(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	ran := false
	l.QueueInLoop(func() {
		ran = true
	})

	if err := l.Run(RunOnce); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ran)
}

func TestQueueInLoopFromOtherGoroutine(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	keepalive, err := NewTimer(time.Hour, time.Hour, func(l *Loop, w *TimerWatcher) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := keepalive.Start(l); err != nil {
		t.Fatal(err)
	}

	var ran atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.QueueInLoop(func() {
			ran.Set(true)
			l.Break(BreakOne)
		})
	}()

	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ran.Get())
	assert.Nil(t, keepalive.Stop())
}

// Break 允许跨 goroutine 调用，阻塞中的 Run 必须被唤醒并返回
func TestBreakFromOtherGoroutine(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	keepalive, err := NewTimer(time.Hour, time.Hour, func(l *Loop, w *TimerWatcher) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := keepalive.Start(l); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Break(BreakAll)
	}()

	start := time.Now()
	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}

	assert.True(t, time.Since(start) < 5*time.Second)
	assert.Nil(t, keepalive.Stop())
}

// Break(BreakOne) 在回调里触发时，本轮迭代剩余的分发必须完成
func TestBreakOneFinishesIteration(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	keepalive, err := NewTimer(time.Hour, time.Hour, func(l *Loop, w *TimerWatcher) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := keepalive.Start(l); err != nil {
		t.Fatal(err)
	}

	var order []int
	t1, _ := NewTimer(0, 0, func(l *Loop, w *TimerWatcher) {
		order = append(order, 1)
		l.Break(BreakOne)
	})
	t2, _ := NewTimer(0, 0, func(l *Loop, w *TimerWatcher) {
		order = append(order, 2)
	})
	if err := t1.Start(l); err != nil {
		t.Fatal(err)
	}
	if err := t2.Start(l); err != nil {
		t.Fatal(err)
	}

	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, uint64(1), l.Iteration())
	assert.Nil(t, keepalive.Stop())
}

// BreakAll 让嵌套的 Run 一并返回
func TestBreakAllUnwindsNestedRun(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	keepalive, _ := NewTimer(time.Hour, time.Hour, func(l *Loop, w *TimerWatcher) {})
	if err := keepalive.Start(l); err != nil {
		t.Fatal(err)
	}

	nestedReturned := false
	outer, _ := NewTimer(0, 0, func(l *Loop, w *TimerWatcher) {
		inner, _ := NewTimer(5*time.Millisecond, 0, func(l *Loop, w *TimerWatcher) {
			l.Break(BreakAll)
		})
		if err := inner.Start(l); err != nil {
			t.Error(err)
			return
		}

		if err := l.Run(RunDefault); err != nil {
			t.Error(err)
		}
		nestedReturned = true
	})
	if err := outer.Start(l); err != nil {
		t.Fatal(err)
	}

	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}

	assert.True(t, nestedReturned)
	assert.Equal(t, int64(0), l.breakHow.Get())
	assert.Nil(t, keepalive.Stop())
}

func TestLoopClose(t *testing.T) {
	l := newLoop(t)

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrLoopClosed, l.Close())

	w, err := NewTimer(0, 0, func(l *Loop, w *TimerWatcher) {})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrLoopClosed, w.Start(l))
}

func TestNowCachedPerIteration(t *testing.T) {
	l := newLoop(t)
	defer l.Close()

	var first, second time.Time
	tm, _ := NewTimer(0, 0, func(l *Loop, w *TimerWatcher) {
		first = l.Now()
		time.Sleep(20 * time.Millisecond)
		second = l.Now()
	})
	if err := tm.Start(l); err != nil {
		t.Fatal(err)
	}

	if err := l.Run(RunDefault); err != nil {
		t.Fatal(err)
	}

	// 一轮分发内时间快照保持不变
	assert.Equal(t, first, second)
}
