// +build linux

package poller

import "github.com/Allenxuxu/reactor/log"

// Create 创建 Poller，优先 epoll，失败时退回 poll
func Create() (Poller, error) {
	p, err := newEpoll()
	if err == nil {
		return p, nil
	}

	log.Warn("epoll unavailable, falling back to poll: ", err)
	return newPoll()
}
