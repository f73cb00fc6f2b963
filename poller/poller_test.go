package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatal(err)
	}
	return fds[0], fds[1]
}

func TestPollerReadable(t *testing.T) {
	p, err := Create()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	assert.Nil(t, p.Add(r, EventRead))

	if _, err := unix.Write(w, []byte{1}); err != nil {
		t.Fatal(err)
	}

	var gotFd int
	var gotEvents Event
	err = p.Poll(time.Second, func(fd int, events Event) {
		gotFd, gotEvents = fd, events
	})
	assert.Nil(t, err)
	assert.Equal(t, r, gotFd)
	assert.NotZero(t, gotEvents&EventRead)

	assert.Nil(t, p.Del(r))
}

func TestPollerTimeout(t *testing.T) {
	p, err := Create()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	assert.Nil(t, p.Add(r, EventRead))

	start := time.Now()
	fired := false
	err = p.Poll(50*time.Millisecond, func(fd int, events Event) {
		fired = true
	})
	assert.Nil(t, err)
	assert.False(t, fired)
	assert.True(t, time.Since(start) >= 40*time.Millisecond)
}

func TestPollerMod(t *testing.T) {
	p, err := Create()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	// 管道写端初始即可写
	assert.Nil(t, p.Add(w, EventWrite))

	var gotEvents Event
	err = p.Poll(time.Second, func(fd int, events Event) {
		gotEvents = events
	})
	assert.Nil(t, err)
	assert.NotZero(t, gotEvents&EventWrite)

	// 改成只关注可读后不应再就绪
	assert.Nil(t, p.Mod(w, EventRead))

	fired := false
	err = p.Poll(50*time.Millisecond, func(fd int, events Event) {
		fired = true
	})
	assert.Nil(t, err)
	assert.False(t, fired)

	assert.Nil(t, p.Del(w))
}

func TestPollerWake(t *testing.T) {
	p, err := Create()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := p.Wake(); err != nil {
			panic(err)
		}
	}()

	woken := false
	err = p.Poll(time.Second, func(fd int, events Event) {
		if fd == -1 {
			woken = true
		}
	})
	assert.Nil(t, err)
	assert.True(t, woken)
}

func TestPollerClose(t *testing.T) {
	p, err := Create()
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, ErrClosed, p.Close())
	assert.Equal(t, ErrClosed, p.Poll(0, func(fd int, events Event) {}))
}
