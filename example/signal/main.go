package main

import (
	"syscall"
	"time"

	"github.com/Allenxuxu/reactor"
	"github.com/Allenxuxu/reactor/log"
	"golang.org/x/sys/unix"
)

func main() {
	l, err := reactor.New()
	if err != nil {
		panic(err)
	}
	defer l.Close()

	tick, err := reactor.NewTimer(time.Second, time.Second, func(l *reactor.Loop, w *reactor.TimerWatcher) {
		log.Info("iteration ", l.Iteration(), " at ", l.Now().Format(time.RFC3339))
	})
	if err != nil {
		panic(err)
	}
	if err := tick.Start(l); err != nil {
		panic(err)
	}

	shutdown := func(l *reactor.Loop, w *reactor.SignalWatcher, signum syscall.Signal) {
		log.Info("caught ", unix.SignalName(signum), ", shutting down")
		l.Break(reactor.BreakAll)
	}

	sigint, err := reactor.NewSignal(unix.SIGINT, shutdown)
	if err != nil {
		panic(err)
	}
	sigterm, err := reactor.NewSignal(unix.SIGTERM, shutdown)
	if err != nil {
		panic(err)
	}
	if err := sigint.Start(l); err != nil {
		panic(err)
	}
	if err := sigterm.Start(l); err != nil {
		panic(err)
	}

	log.Info("pid ", syscall.Getpid(), ", send SIGINT or SIGTERM to stop")
	if err := l.Run(reactor.RunDefault); err != nil {
		log.Error("run: ", err)
	}

	_ = tick.Stop()
	_ = sigint.Stop()
	_ = sigterm.Stop()
}
