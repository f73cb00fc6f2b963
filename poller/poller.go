package poller

import (
	"errors"
	"time"
)

// ErrClosed poller 已关闭
var ErrClosed = errors.New("poller instance is closed")

// Event 事件位掩码
type Event uint32

// Event values
const (
	EventRead  Event = 0x1
	EventWrite Event = 0x2
	EventErr   Event = 0x80
)

// Poller 封装底层 IO 多路复用机制，Create 按平台选择最优实现。
// Poll 的 timeout < 0 表示一直阻塞，0 表示处理完已就绪事件立即返回。
// 唤醒事件通过 handler(-1, 0) 上报。
type Poller interface {
	Add(fd int, events Event) error
	Mod(fd int, events Event) error
	Del(fd int) error
	Poll(timeout time.Duration, handler func(fd int, events Event)) error
	Wake() error
	Close() error
}

const waitEventsBegin = 1024

var wakeBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

// timeoutMsec 向上取整到毫秒，避免短超时退化为忙等
func timeoutMsec(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}

	msec := int(timeout / time.Millisecond)
	if msec == 0 && timeout > 0 {
		msec = 1
	}
	return msec
}
