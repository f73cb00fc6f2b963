package main

import (
	"flag"
	"net"
	"syscall"

	"github.com/Allenxuxu/reactor"
	"github.com/Allenxuxu/reactor/log"
	"github.com/Allenxuxu/reactor/poller"
	"github.com/Allenxuxu/ringbuffer"
	"github.com/gobwas/pool/pbytes"
	"github.com/libp2p/go-reuseport"
	"golang.org/x/sys/unix"
)

type conn struct {
	fd  int
	out *ringbuffer.RingBuffer
}

func newConn(l *reactor.Loop, fd int) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return
	}

	c := &conn{
		fd:  fd,
		out: ringbuffer.GetFromPool(),
	}

	w, err := reactor.NewIO(fd, poller.EventRead, c.handleEvent)
	if err != nil {
		log.Error("new watcher: ", err)
		_ = unix.Close(fd)
		return
	}
	if err := w.Start(l); err != nil {
		log.Error("start watcher: ", err)
		_ = unix.Close(fd)
	}
}

func (c *conn) handleEvent(l *reactor.Loop, w *reactor.IOWatcher, revents poller.Event) {
	if revents&poller.EventErr != 0 {
		c.close(w)
		return
	}

	if revents&poller.EventRead != 0 {
		buf := pbytes.GetLen(4096)
		n, err := unix.Read(c.fd, buf)
		if n == 0 || (err != nil && err != unix.EAGAIN) {
			pbytes.Put(buf)
			c.close(w)
			return
		}
		if n > 0 {
			c.echo(w, buf[:n])
		}
		pbytes.Put(buf)
	}

	if revents&poller.EventWrite != 0 {
		c.flush(w)
	}
}

// echo 先尝试直接回写，写不完的数据进出站缓冲并关注可写事件
func (c *conn) echo(w *reactor.IOWatcher, data []byte) {
	if !c.out.IsEmpty() {
		_, _ = c.out.Write(data)
		return
	}

	n, err := unix.Write(c.fd, data)
	if err != nil && err != unix.EAGAIN {
		c.close(w)
		return
	}
	if n < 0 {
		n = 0
	}
	if n < len(data) {
		_, _ = c.out.Write(data[n:])
		_ = w.Modify(poller.EventRead | poller.EventWrite)
	}
}

func (c *conn) flush(w *reactor.IOWatcher) {
	first, end := c.out.PeekAll()
	n, err := unix.Write(c.fd, first)
	if err != nil && err != unix.EAGAIN {
		c.close(w)
		return
	}
	if n == len(first) && len(end) > 0 {
		c.out.Retrieve(n)
		first = end
		n, err = unix.Write(c.fd, first)
		if err != nil && err != unix.EAGAIN {
			c.close(w)
			return
		}
	}
	if n > 0 {
		c.out.Retrieve(n)
	}

	if c.out.IsEmpty() {
		c.out.Reset()
		_ = w.Modify(poller.EventRead)
	}
}

func (c *conn) close(w *reactor.IOWatcher) {
	if err := w.Stop(); err != nil {
		log.Error("stop watcher: ", err)
	}
	if err := unix.Close(c.fd); err != nil {
		log.Error("close fd ", c.fd, ": ", err)
	}
	ringbuffer.PutInPool(c.out)
}

func listenerFd(ln net.Listener) (int, error) {
	sc, err := ln.(syscall.Conn).SyscallConn()
	if err != nil {
		return -1, err
	}

	var fd int
	if err := sc.Control(func(f uintptr) {
		fd = int(f)
	}); err != nil {
		return -1, err
	}
	return fd, nil
}

func main() {
	addr := flag.String("addr", ":1833", "listen address")
	flag.Parse()

	ln, err := reuseport.Listen("tcp", *addr)
	if err != nil {
		panic(err)
	}
	defer ln.Close()

	lfd, err := listenerFd(ln)
	if err != nil {
		panic(err)
	}
	if err := unix.SetNonblock(lfd, true); err != nil {
		panic(err)
	}

	l, err := reactor.New()
	if err != nil {
		panic(err)
	}
	defer l.Close()

	acceptor, err := reactor.NewIO(lfd, poller.EventRead, func(l *reactor.Loop, w *reactor.IOWatcher, revents poller.Event) {
		nfd, _, err := unix.Accept(w.Fd())
		if err != nil {
			if err != unix.EAGAIN {
				log.Error("accept: ", err)
			}
			return
		}
		newConn(l, nfd)
	})
	if err != nil {
		panic(err)
	}
	if err := acceptor.Start(l); err != nil {
		panic(err)
	}

	stop, err := reactor.NewSignal(unix.SIGINT, func(l *reactor.Loop, w *reactor.SignalWatcher, signum syscall.Signal) {
		log.Info("caught ", signum, ", shutting down")
		l.Break(reactor.BreakAll)
	})
	if err != nil {
		panic(err)
	}
	if err := stop.Start(l); err != nil {
		panic(err)
	}

	log.Info("echo server listening on ", *addr)
	if err := l.Run(reactor.RunDefault); err != nil {
		log.Error("run: ", err)
	}

	_ = acceptor.Stop()
	_ = stop.Stop()
}
