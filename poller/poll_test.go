package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// 兜底 poll(2) 实现单独过一遍基本路径
func TestPollBackend(t *testing.T) {
	p, err := newPoll()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	assert.Nil(t, p.Add(r, EventRead))
	assert.Equal(t, unix.EEXIST, p.Add(r, EventRead))

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
	assert.Equal(t, unix.ENOENT, p.Del(r))
	assert.Equal(t, unix.ENOENT, p.Mod(r, EventRead))
}

func TestPollBackendWake(t *testing.T) {
	p, err := newPoll()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = p.Wake()
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
