// +build linux darwin netbsd freebsd openbsd dragonfly

package poller

import (
	"time"

	"github.com/Allenxuxu/reactor/log"
	"github.com/Allenxuxu/toolkit/sync/atomic"
	"golang.org/x/sys/unix"
)

// pollBackend poll(2) 兜底实现，epoll/kqueue 不可用时启用
type pollBackend struct {
	fds     map[int]Event
	rfd     int // 唤醒管道读端
	wfd     int
	closed  atomic.Bool
	pfds    []unix.PollFd
	wakeBuf []byte
}

func newPoll() (Poller, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, err
		}
		unix.CloseOnExec(fd)
	}

	return &pollBackend{
		fds:     make(map[int]Event),
		rfd:     p[0],
		wfd:     p[1],
		pfds:    make([]unix.PollFd, 0, waitEventsBegin),
		wakeBuf: make([]byte, 8),
	}, nil
}

func (p *pollBackend) Wake() error {
	_, err := unix.Write(p.wfd, wakeBytes[:1])
	if err == unix.EAGAIN {
		// 管道已满，唤醒本就在途
		err = nil
	}
	return err
}

func (p *pollBackend) drainWake() {
	for {
		n, err := unix.Read(p.rfd, p.wakeBuf)
		if n <= 0 || err != nil {
			if err != nil && err != unix.EAGAIN {
				log.Error("drainWake ", err)
			}
			return
		}
	}
}

func (p *pollBackend) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	_ = unix.Close(p.rfd)
	return unix.Close(p.wfd)
}

func (p *pollBackend) Add(fd int, events Event) error {
	if _, ok := p.fds[fd]; ok {
		return unix.EEXIST
	}
	p.fds[fd] = events
	return nil
}

func (p *pollBackend) Mod(fd int, events Event) error {
	if _, ok := p.fds[fd]; !ok {
		return unix.ENOENT
	}
	p.fds[fd] = events
	return nil
}

func (p *pollBackend) Del(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return unix.ENOENT
	}
	delete(p.fds, fd)
	return nil
}

func pollEvents(events Event) int16 {
	var e int16
	if events&EventRead != 0 {
		e |= unix.POLLIN | unix.POLLPRI
	}
	if events&EventWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func (p *pollBackend) Poll(timeout time.Duration, handler func(fd int, events Event)) error {
	if p.closed.Get() {
		return ErrClosed
	}

	pfds := p.pfds[:0]
	pfds = append(pfds, unix.PollFd{Fd: int32(p.rfd), Events: unix.POLLIN})
	for fd, ev := range p.fds {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: pollEvents(ev)})
	}
	p.pfds = pfds

	n, err := unix.Poll(pfds, timeoutMsec(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}

	for i := range pfds {
		re := pfds[i].Revents
		if re == 0 {
			continue
		}

		fd := int(pfds[i].Fd)
		if fd == p.rfd {
			p.drainWake()
			handler(-1, 0)
			continue
		}

		var rEvents Event
		if re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			rEvents |= EventErr
		}
		if re&(unix.POLLIN|unix.POLLPRI) != 0 {
			rEvents |= EventRead
		}
		if re&unix.POLLOUT != 0 {
			rEvents |= EventWrite
		}
		handler(fd, rEvents)
	}
	return nil
}
