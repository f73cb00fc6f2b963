// +build darwin netbsd freebsd openbsd dragonfly

package poller

import (
	"time"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"golang.org/x/sys/unix"
)

type kqueue struct {
	fd     int
	closed atomic.Bool
	events []unix.Kevent_t
}

func newKqueue() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	_, err = unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &kqueue{
		fd:     fd,
		events: make([]unix.Kevent_t, waitEventsBegin),
	}, nil
}

func (kq *kqueue) Wake() error {
	_, err := unix.Kevent(kq.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (kq *kqueue) Close() error {
	if !kq.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return unix.Close(kq.fd)
}

// set 按位开关单个过滤器，删除不存在的过滤器不算错误
func (kq *kqueue) set(fd int, filter int16, enable bool) error {
	flags := uint16(unix.EV_DELETE)
	if enable {
		flags = unix.EV_ADD
	}

	_, err := unix.Kevent(kq.fd, []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}}, nil, nil)
	if !enable && err == unix.ENOENT {
		err = nil
	}
	return err
}

func (kq *kqueue) apply(fd int, events Event) error {
	if err := kq.set(fd, unix.EVFILT_READ, events&EventRead != 0); err != nil {
		return err
	}
	return kq.set(fd, unix.EVFILT_WRITE, events&EventWrite != 0)
}

func (kq *kqueue) Add(fd int, events Event) error {
	return kq.apply(fd, events)
}

func (kq *kqueue) Mod(fd int, events Event) error {
	return kq.apply(fd, events)
}

func (kq *kqueue) Del(fd int) error {
	return kq.apply(fd, 0)
}

func (kq *kqueue) Poll(timeout time.Duration, handler func(fd int, events Event)) error {
	if kq.closed.Get() {
		return ErrClosed
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(kq.fd, nil, kq.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		e := kq.events[i]
		if e.Filter == unix.EVFILT_USER {
			handler(-1, 0)
			continue
		}

		var rEvents Event
		if e.Flags&unix.EV_ERROR != 0 || e.Flags&unix.EV_EOF != 0 {
			rEvents |= EventErr
		}
		if e.Filter == unix.EVFILT_READ {
			rEvents |= EventRead
		}
		if e.Filter == unix.EVFILT_WRITE {
			rEvents |= EventWrite
		}
		handler(int(e.Ident), rEvents)
	}

	if n == len(kq.events) {
		kq.events = make([]unix.Kevent_t, n*2)
	}
	return nil
}
