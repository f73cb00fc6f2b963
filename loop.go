package reactor

import (
	"container/heap"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Allenxuxu/reactor/log"
	"github.com/Allenxuxu/reactor/metrics"
	"github.com/Allenxuxu/reactor/poller"
	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/Allenxuxu/toolkit/sync/spinlock"
)

// RunMode 控制 Run 的阻塞行为
type RunMode int

// Run modes
const (
	// RunDefault 持续迭代，直到没有活跃 watcher 或 Break
	RunDefault RunMode = iota
	// RunNoWait 单次迭代，poll 超时为 0，处理完已就绪事件立即返回
	RunNoWait
	// RunOnce 单次迭代，阻塞至至少一个事件或最近的定时器到期
	RunOnce
)

// BreakHow 控制 Break 的作用范围
type BreakHow int

// Break scopes
const (
	// BreakOne 当前（或下一次）Run 调用在完成本轮迭代后返回
	BreakOne BreakHow = iota + 1
	// BreakAll 所有嵌套的 Run 调用都返回
	BreakAll
)

type readyEvent struct {
	fd     int
	events poller.Event
}

type ioDispatch struct {
	w      *IOWatcher
	gen    uint64
	events poller.Event
}

// Loop 单线程事件循环。除 QueueInLoop 和 Break 外，所有方法只允许在
// 创建 Loop 的 goroutine（或其回调）中调用。
type Loop struct {
	poll poller.Poller

	fds    map[int]*fdWatchers
	ready  []readyEvent
	woken  bool
	closed atomic.Bool

	timers   timerQueue
	timerSeq uint64

	signals    map[syscall.Signal][]*SignalWatcher
	sigCh      chan os.Signal
	sigMu      spinlock.SpinLock
	sigPending []syscall.Signal
	sigMarked  [maxSignal + 1]bool

	ioCount     int
	timerCount  int
	signalCount int

	now       time.Time
	iteration atomic.Int64
	breakHow  atomic.Int64
	depth     int

	needWake  *atomic.Bool
	mu        spinlock.SpinLock
	taskQueue []func()

	opts *Options
}

// New 创建 Loop，按平台从 epoll/kqueue/poll 中选择可用 backend
func New(opts ...Option) (*Loop, error) {
	options := newOptions(opts...)

	p, err := poller.Create()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	l := &Loop{
		poll:      p,
		fds:       make(map[int]*fdWatchers),
		signals:   make(map[syscall.Signal][]*SignalWatcher),
		sigCh:     make(chan os.Signal, options.SignalBufferSize),
		now:       time.Now(),
		needWake:  atomic.New(true),
		taskQueue: make([]func(), 0, options.TaskQueueSize),
		opts:      options,
	}

	go l.forwardSignals()

	return l, nil
}

// Run 驱动事件循环，直到终止条件满足。
// RunDefault 模式在没有活跃 watcher 时返回；Break 对所有模式生效。
// poll 被信号打断（EINTR）时透明重试，其他 backend 错误原样返回。
func (l *Loop) Run(mode RunMode) error {
	l.depth++
	defer func() {
		l.depth--
		if l.depth == 0 {
			_ = l.breakHow.Swap(0)
		}
	}()

	for {
		if BreakHow(l.breakHow.Get()) == BreakAll {
			return nil
		}
		if mode == RunDefault && l.activeWatchers() == 0 {
			return nil
		}

		if err := l.iterate(mode); err != nil {
			return err
		}

		switch BreakHow(l.breakHow.Get()) {
		case BreakAll:
			return nil
		case BreakOne:
			_ = l.breakHow.Swap(0)
			return nil
		default:
			if mode != RunDefault {
				return nil
			}
		}
	}
}

// Break 通知 Run 返回。BreakOne 只结束最内层的 Run 调用，
// BreakAll 同时结束所有嵌套的 Run 调用。本轮迭代中剩余的分发照常完成。
func (l *Loop) Break(how BreakHow) {
	if how != BreakOne && how != BreakAll {
		return
	}

	_ = l.breakHow.Swap(int64(how))
	if err := l.poll.Wake(); err != nil && err != poller.ErrClosed {
		log.Error("[Break] wake: ", err)
	}
}

// Iteration 返回已完成的迭代次数
func (l *Loop) Iteration() uint64 {
	return uint64(l.iteration.Get())
}

// Now 返回本轮迭代开始时缓存的时间快照，一轮分发内保持不变。
// 需要精确时间的回调应自行调用 time.Now。
func (l *Loop) Now() time.Time {
	return l.now
}

// UpdateNow 强制刷新缓存时间。Loop 创建后长时间未 Run 时，
// 可在 Start/Again 前调用，避免基于过期时间计算 deadline。
func (l *Loop) UpdateNow() {
	l.now = time.Now()
}

// QueueInLoop 将 f 排入 loop 线程执行，下一轮迭代统一调用。
// 这是其他 goroutine 与 loop 交互的唯一安全入口。
func (l *Loop) QueueInLoop(f func()) {
	l.mu.Lock()
	l.taskQueue = append(l.taskQueue, f)
	l.mu.Unlock()

	if l.needWake.CompareAndSwap(true, false) {
		if err := l.poll.Wake(); err != nil && err != poller.ErrClosed {
			log.Error("QueueInLoop wake: ", err)
		}
	}
}

// Close 释放 backend 与信号转发资源。调用前应先停掉全部 watcher，
// 遗留的注册会被强制释放并记录日志。
func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrLoopClosed
	}

	signal.Stop(l.sigCh)
	close(l.sigCh)

	if l.activeWatchers() != 0 {
		log.Warn("loop closed with active watchers: io=", l.ioCount,
			" timer=", l.timerCount, " signal=", l.signalCount)

		for fd := range l.fds {
			if err := l.poll.Del(fd); err != nil {
				log.Error("[Close] del fd ", fd, ": ", err)
			}
			delete(l.fds, fd)
		}
		for signum := range l.signals {
			signal.Reset(signum)
			delete(l.signals, signum)
		}
	}

	return l.poll.Close()
}

func (l *Loop) activeWatchers() int {
	return l.ioCount + l.timerCount + l.signalCount
}

// iterate 一轮完整迭代：poll → 刷新时间 → 分发 IO → 到期定时器 →
// 投递信号 → 执行排队任务 → 迭代计数
func (l *Loop) iterate(mode RunMode) error {
	enabled := metrics.Enable.Get()

	var pollStart time.Time
	if enabled {
		pollStart = time.Now()
	}

	l.ready = l.ready[:0]
	l.woken = false
	if err := l.poll.Poll(l.pollTimeout(mode), l.collect); err != nil {
		return err
	}

	l.now = time.Now()
	woken := l.woken // 本地快照，嵌套 Run 会复用 l.woken

	var dispatchStart time.Time
	if enabled {
		metrics.PollDuration.Set(float64(l.now.Sub(pollStart)) / float64(time.Microsecond))
		dispatchStart = l.now
	}

	l.dispatchIO()
	l.expireTimers()
	l.dispatchSignals()

	if woken {
		l.needWake.Set(true)
	}
	l.doPendingFunc()

	l.iteration.Add(1)

	if enabled {
		metrics.DispatchDuration.Set(float64(time.Since(dispatchStart)) / float64(time.Microsecond))
		metrics.LoopIterations.Inc()
		metrics.ActiveWatchers.WithLabelValues("io").Set(float64(l.ioCount))
		metrics.ActiveWatchers.WithLabelValues("timer").Set(float64(l.timerCount))
		metrics.ActiveWatchers.WithLabelValues("signal").Set(float64(l.signalCount))
	}
	return nil
}

// pollTimeout 等待时长取模式策略与最近定时器 deadline 的较小者，
// 每轮迭代重新计算。没有活跃 watcher 时不等待，避免空 loop 上的
// Run(RunOnce) 永久阻塞。
func (l *Loop) pollTimeout(mode RunMode) time.Duration {
	if mode == RunNoWait || l.activeWatchers() == 0 {
		return 0
	}

	next, ok := l.timers.peek()
	if !ok {
		return -1
	}

	d := next.deadline.Sub(time.Now())
	if d < 0 {
		d = 0
	}
	return d
}

func (l *Loop) collect(fd int, events poller.Event) {
	if fd == -1 {
		l.woken = true
		return
	}
	l.ready = append(l.ready, readyEvent{fd: fd, events: events})
}

// dispatchIO 先对就绪集合做一次快照再触发回调：本轮内 Stop 的 watcher
// 不再触发，本轮内 Start 的 watcher 下一轮才参与分发。
// 快照保存在局部变量中，嵌套 Run 不会破坏它。
func (l *Loop) dispatchIO() {
	if len(l.ready) == 0 {
		return
	}

	var batch []ioDispatch
	for _, re := range l.ready {
		fw, ok := l.fds[re.fd]
		if !ok {
			continue
		}

		for _, w := range fw.watchers {
			revents := re.events & w.events
			if re.events&poller.EventErr != 0 {
				revents |= poller.EventErr
			}
			if revents != 0 {
				batch = append(batch, ioDispatch{w: w, gen: w.gen, events: revents})
			}
		}
	}

	for _, d := range batch {
		// 本轮内 Stop（含 Stop 后重新 Start）的 watcher 不再触发
		if !d.w.active || d.w.gen != d.gen {
			continue
		}
		d.w.cb(l, d.w, d.events)
	}
}

// expireTimers 先弹出全部到期定时器再触发回调，回调中的重新调度
// 从下一轮迭代起生效
func (l *Loop) expireTimers() {
	if l.timers.Len() == 0 {
		return
	}

	type dueTimer struct {
		t   *TimerWatcher
		gen uint64
	}

	var due []dueTimer
	for l.timers.Len() > 0 {
		t := l.timers.items[0]
		if t.deadline.After(l.now) {
			break
		}
		heap.Pop(&l.timers)
		due = append(due, dueTimer{t: t, gen: t.gen})
	}

	for _, d := range due {
		t := d.t
		// 被本轮更早的回调 Stop（或重新调度）的到期项随之作废
		if !t.active || t.gen != d.gen {
			continue
		}

		t.fired = true
		if t.repeat > 0 {
			t.cb(l, t)
			if t.active && t.heapIndex < 0 {
				l.schedule(t, l.now.Add(t.repeat))
			}
		} else {
			l.deactivateTimer(t)
			t.cb(l, t)
		}
	}
}

func (l *Loop) forwardSignals() {
	for sig := range l.sigCh {
		s, ok := sig.(syscall.Signal)
		if !ok || s <= 0 || s > maxSignal {
			continue
		}

		l.sigMu.Lock()
		if !l.sigMarked[s] {
			l.sigMarked[s] = true
			l.sigPending = append(l.sigPending, s)
		}
		l.sigMu.Unlock()

		if err := l.poll.Wake(); err != nil && err != poller.ErrClosed {
			log.Error("signal wake: ", err)
		}
	}
}

// dispatchSignals 取走 pending 集合后逐个投递，同一信号的 watcher
// 按注册顺序触发
func (l *Loop) dispatchSignals() {
	l.sigMu.Lock()
	if len(l.sigPending) == 0 {
		l.sigMu.Unlock()
		return
	}
	pending := make([]syscall.Signal, len(l.sigPending))
	copy(pending, l.sigPending)
	l.sigPending = l.sigPending[:0]
	for _, s := range pending {
		l.sigMarked[s] = false
	}
	l.sigMu.Unlock()

	type sigDispatch struct {
		w   *SignalWatcher
		gen uint64
	}

	for _, s := range pending {
		ws := l.signals[s]
		if len(ws) == 0 {
			continue
		}

		batch := make([]sigDispatch, len(ws))
		for i, w := range ws {
			batch[i] = sigDispatch{w: w, gen: w.gen}
		}
		for _, d := range batch {
			if !d.w.active || d.w.gen != d.gen {
				continue
			}
			d.w.cb(l, d.w, s)
		}
	}
}

// doPendingFunc 取走队列再执行；回调里可能嵌套 Run，因此队列整段
// 移出，不做原地复用
func (l *Loop) doPendingFunc() {
	l.mu.Lock()
	pf := l.taskQueue
	if len(pf) == 0 {
		l.mu.Unlock()
		return
	}
	l.taskQueue = make([]func(), 0, l.opts.TaskQueueSize)
	l.mu.Unlock()

	length := len(pf)
	for i := 0; i < length; i++ {
		pf[i]()
	}
}
