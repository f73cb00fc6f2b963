package reactor

import (
	"os/signal"
	"syscall"
)

const maxSignal = 64

// SignalCallback 信号回调，signum 为触发的信号编号
type SignalCallback func(l *Loop, w *SignalWatcher, signum syscall.Signal)

// SignalWatcher 关注单个信号。OS 信号到达时只做 pending 标记，
// 回调始终在 loop 线程的迭代中触发，同一信号的多个 watcher
// 按注册顺序依次调用。
type SignalWatcher struct {
	KeyValueContext

	signum syscall.Signal
	cb     SignalCallback

	loop   *Loop
	active bool
	gen    uint64 // 每次 Start 递增，已快照的投递批次据此失效
}

// NewSignal 创建信号 watcher，编号范围 1..64
func NewSignal(signum syscall.Signal, cb SignalCallback) (*SignalWatcher, error) {
	if signum <= 0 || signum > maxSignal {
		return nil, ErrInvalidSignal
	}
	if cb == nil {
		return nil, ErrNilCallback
	}

	return &SignalWatcher{
		signum: signum,
		cb:     cb,
	}, nil
}

// Signum ...
func (w *SignalWatcher) Signum() syscall.Signal {
	return w.signum
}

// Active ...
func (w *SignalWatcher) Active() bool {
	return w.active
}

// Start 注册对信号的关注。该信号的第一个 watcher 会建立进程级拦截。
func (w *SignalWatcher) Start(l *Loop) error {
	if w.active {
		if w.loop == l {
			return nil
		}
		return ErrAlreadyActive
	}
	if l.closed.Get() {
		return ErrLoopClosed
	}

	ws := l.signals[w.signum]
	if len(ws) == 0 {
		signal.Notify(l.sigCh, w.signum)
	}
	l.signals[w.signum] = append(ws, w)

	w.loop = l
	w.active = true
	w.gen++
	l.signalCount++
	return nil
}

// Stop 取消关注。该信号最后一个 watcher 停止后释放进程级拦截
// （signal.Reset 作用于整个进程，多个 Loop 拦截同一信号时互相影响）。
func (w *SignalWatcher) Stop() error {
	if !w.active {
		return ErrNotActive
	}

	l := w.loop
	ws := l.signals[w.signum]
	for i, o := range ws {
		if o == w {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}

	if len(ws) == 0 {
		delete(l.signals, w.signum)
		signal.Reset(w.signum)
	} else {
		l.signals[w.signum] = ws
	}

	w.active = false
	w.loop = nil
	l.signalCount--
	return nil
}
