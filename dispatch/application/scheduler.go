package application

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler drives Dispatcher.Tick on a fixed interval.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration

	mu sync.Mutex
	c  *cron.Cron
}

func NewScheduler(dispatcher *Dispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Scheduler{dispatcher: dispatcher, interval: interval}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.c = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.dispatcher.Tick(ctx)
	}))
	s.c.Start()
	logrus.Infof("[SCHEDULER] Dispatch ticker started every %s", s.interval)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	logrus.Info("[SCHEDULER] Dispatch ticker stopped")
}
