package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const reapTimeout = 30 * time.Second

// Reaper disposes abandoned sessions and reports how many it removed.
type Reaper interface {
	Reap(ctx context.Context) (int64, error)
}

// ReaperJob periodically disposes session machines nobody is using.
type ReaperJob struct {
	reaper   Reaper
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewReaperJob(reaper Reaper, interval time.Duration) *ReaperJob {
	return &ReaperJob{
		reaper:   reaper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *ReaperJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session reaper started")
}

// Stop waits for an in-progress sweep to finish.
func (j *ReaperJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("session reaper stopped")
	})
}

func (j *ReaperJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ReaperJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	count, err := j.reaper.Reap(ctx)
	if err != nil {
		log.Error().Err(err).Int64("count", count).Msg("failed to reap sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("reaped idle sessions")
	}
}
