package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcherKeyValueContext(t *testing.T) {
	w, err := NewTimer(time.Hour, 0, func(l *Loop, w *TimerWatcher) {})
	if err != nil {
		t.Fatal(err)
	}

	_, ok := w.Get("name")
	assert.False(t, ok)

	w.Set("name", "heartbeat")
	v, ok := w.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "heartbeat", v)

	w.Set("name", 1)
	v, ok = w.Get("name")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	w.Delete("name")
	_, ok = w.Get("name")
	assert.False(t, ok)
}
