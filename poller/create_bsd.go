// +build darwin netbsd freebsd openbsd dragonfly

package poller

import "github.com/Allenxuxu/reactor/log"

// Create 创建 Poller，优先 kqueue，失败时退回 poll
func Create() (Poller, error) {
	p, err := newKqueue()
	if err == nil {
		return p, nil
	}

	log.Warn("kqueue unavailable, falling back to poll: ", err)
	return newPoll()
}
