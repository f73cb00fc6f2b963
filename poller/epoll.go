// +build linux

package poller

import (
	"time"

	"github.com/Allenxuxu/reactor/log"
	"github.com/Allenxuxu/toolkit/sync/atomic"
	"golang.org/x/sys/unix"
)

type epoll struct {
	fd      int
	eventFd int
	closed  atomic.Bool
	events  []unix.EpollEvent
	wakeBuf []byte
}

func newEpoll() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	r0, _, errno := unix.Syscall(unix.SYS_EVENTFD2, 0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC, 0)
	if errno != 0 {
		_ = unix.Close(fd)
		return nil, errno
	}
	eventFd := int(r0)

	err = unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, eventFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(eventFd),
	})
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(eventFd)
		return nil, err
	}

	return &epoll{
		fd:      fd,
		eventFd: eventFd,
		events:  make([]unix.EpollEvent, waitEventsBegin),
		wakeBuf: make([]byte, 8),
	}, nil
}

func (ep *epoll) Wake() error {
	_, err := unix.Write(ep.eventFd, wakeBytes)
	if err == unix.EAGAIN {
		// 计数器已满，唤醒本就在途
		err = nil
	}
	return err
}

func (ep *epoll) wakeHandlerRead() {
	n, err := unix.Read(ep.eventFd, ep.wakeBuf)
	if err != nil || n != 8 {
		log.Error("wakeHandlerRead ", err, n)
	}
}

func (ep *epoll) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	_ = unix.Close(ep.eventFd)
	return unix.Close(ep.fd)
}

func epollEvents(events Event) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (ep *epoll) Add(fd int, events Event) error {
	return unix.EpollCtl(ep.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: epollEvents(events),
		Fd:     int32(fd),
	})
}

func (ep *epoll) Mod(fd int, events Event) error {
	return unix.EpollCtl(ep.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: epollEvents(events),
		Fd:     int32(fd),
	})
}

func (ep *epoll) Del(fd int) error {
	return unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (ep *epoll) Poll(timeout time.Duration, handler func(fd int, events Event)) error {
	if ep.closed.Get() {
		return ErrClosed
	}

	n, err := unix.EpollWait(ep.fd, ep.events, timeoutMsec(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(ep.events[i].Fd)
		if fd == ep.eventFd {
			ep.wakeHandlerRead()
			handler(-1, 0)
			continue
		}

		var rEvents Event
		e := ep.events[i].Events
		if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			rEvents |= EventErr
		}
		if e&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
			rEvents |= EventRead
		}
		if e&unix.EPOLLOUT != 0 {
			rEvents |= EventWrite
		}
		handler(fd, rEvents)
	}

	if n == len(ep.events) {
		ep.events = make([]unix.EpollEvent, n*2)
	}
	return nil
}
