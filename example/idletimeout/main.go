package main

import (
	"time"

	"github.com/Allenxuxu/reactor"
	"github.com/Allenxuxu/reactor/log"
)

// 演示 Again 刷新空闲定时器：前 5 次心跳都会顺延空闲超时，
// 心跳停止后空闲定时器才会触发。
func main() {
	l, err := reactor.New()
	if err != nil {
		panic(err)
	}
	defer l.Close()

	idle, err := reactor.NewTimer(3*time.Second, 0, func(l *reactor.Loop, w *reactor.TimerWatcher) {
		log.Info("idle timeout, exiting")
		l.Break(reactor.BreakAll)
	})
	if err != nil {
		panic(err)
	}
	if err := idle.Start(l); err != nil {
		panic(err)
	}

	beats := 0
	heartbeat, err := reactor.NewTimer(time.Second, time.Second, func(l *reactor.Loop, w *reactor.TimerWatcher) {
		beats++
		log.Info("heartbeat ", beats)
		if err := idle.Again(l); err != nil {
			log.Error("refresh idle timer: ", err)
		}
		if beats == 5 {
			log.Info("heartbeat stopped, idle timer keeps ticking")
			if err := w.Stop(); err != nil {
				log.Error(err)
			}
		}
	})
	if err != nil {
		panic(err)
	}
	if err := heartbeat.Start(l); err != nil {
		panic(err)
	}

	if err := l.Run(reactor.RunDefault); err != nil {
		log.Error("run: ", err)
	}
}
