package reactor

import (
	"github.com/Allenxuxu/reactor/log"
	"github.com/Allenxuxu/reactor/poller"
)

// IOCallback IO 事件回调，revents 为实际就绪的事件（关注掩码的子集，
// 可能额外带上 EventErr）
type IOCallback func(l *Loop, w *IOWatcher, revents poller.Event)

// IOWatcher 关注单个 fd 上的可读/可写事件。fd 归调用方所有，
// watcher 不会关闭它。
type IOWatcher struct {
	KeyValueContext

	fd     int
	events poller.Event
	cb     IOCallback

	loop   *Loop
	active bool
	gen    uint64 // 每次 Start 递增，已快照的就绪事件据此失效
}

// fdWatchers 单个 fd 上的全部 watcher。backend 上该 fd 的注册掩码
// 始终等于各活跃 watcher 关注掩码的并集。
type fdWatchers struct {
	watchers []*IOWatcher // 注册顺序
	events   poller.Event // 当前注册到 backend 的并集
}

func (fw *fdWatchers) union() poller.Event {
	var u poller.Event
	for _, w := range fw.watchers {
		u |= w.events
	}
	return u
}

// NewIO 创建 IO watcher，events 须为 EventRead/EventWrite 的非空组合
func NewIO(fd int, events poller.Event, cb IOCallback) (*IOWatcher, error) {
	if fd < 0 {
		return nil, ErrInvalidDescriptor
	}
	if events == 0 || events&^(poller.EventRead|poller.EventWrite) != 0 {
		return nil, ErrInvalidEvents
	}
	if cb == nil {
		return nil, ErrNilCallback
	}

	return &IOWatcher{
		fd:     fd,
		events: events,
		cb:     cb,
	}, nil
}

// Fd ...
func (w *IOWatcher) Fd() int {
	return w.fd
}

// Events 返回当前关注的事件掩码
func (w *IOWatcher) Events() poller.Event {
	return w.events
}

// Active ...
func (w *IOWatcher) Active() bool {
	return w.active
}

// Start 注册到 loop。同一 loop 上重复 Start 为幂等空操作，
// 已在其他 loop 上激活时返回 ErrAlreadyActive。
func (w *IOWatcher) Start(l *Loop) error {
	if w.active {
		if w.loop == l {
			return nil
		}
		return ErrAlreadyActive
	}
	if l.closed.Get() {
		return ErrLoopClosed
	}

	fw, ok := l.fds[w.fd]
	if !ok {
		fw = &fdWatchers{}
	}

	union := fw.events | w.events
	var err error
	switch {
	case !ok:
		err = l.poll.Add(w.fd, union)
	case union != fw.events:
		err = l.poll.Mod(w.fd, union)
	}
	if err != nil {
		return err
	}

	if !ok {
		l.fds[w.fd] = fw
	}
	fw.events = union
	fw.watchers = append(fw.watchers, w)

	w.loop = l
	w.active = true
	w.gen++
	l.ioCount++
	return nil
}

// Modify 调整关注掩码，无需 Stop/Start，backend 注册原地更新
func (w *IOWatcher) Modify(events poller.Event) error {
	if !w.active {
		return ErrNotActive
	}
	if events == 0 || events&^(poller.EventRead|poller.EventWrite) != 0 {
		return ErrInvalidEvents
	}

	l := w.loop
	fw := l.fds[w.fd]

	old := w.events
	w.events = events

	union := fw.union()
	if union != fw.events {
		if err := l.poll.Mod(w.fd, union); err != nil {
			w.events = old
			return err
		}
		fw.events = union
	}
	return nil
}

// Stop 取消注册。fd 上仍有其他 watcher 时只收窄 backend 掩码，
// 最后一个 watcher 停止后才删除注册。
func (w *IOWatcher) Stop() error {
	if !w.active {
		return ErrNotActive
	}

	l := w.loop
	fw := l.fds[w.fd]
	for i, o := range fw.watchers {
		if o == w {
			fw.watchers = append(fw.watchers[:i], fw.watchers[i+1:]...)
			break
		}
	}

	if len(fw.watchers) == 0 {
		if err := l.poll.Del(w.fd); err != nil {
			log.Error("[Stop] del fd ", w.fd, ": ", err)
		}
		delete(l.fds, w.fd)
	} else if union := fw.union(); union != fw.events {
		// Mod 失败时用 Del+Add 重建注册，保证 backend 掩码等于
		// 剩余 watcher 关注的并集
		if err := l.poll.Mod(w.fd, union); err != nil {
			log.Error("[Stop] mod fd ", w.fd, ": ", err)
			if err := l.poll.Del(w.fd); err == nil {
				err = l.poll.Add(w.fd, union)
			}
			if err != nil {
				log.Error("[Stop] re-add fd ", w.fd, ": ", err)
			} else {
				fw.events = union
			}
		} else {
			fw.events = union
		}
	}

	w.active = false
	w.loop = nil
	l.ioCount--
	return nil
}
