// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpirySweeper runs ExpireStale every interval, once immediately at
// start. Overlapping runs are skipped. Call Shutdown on the returned
// scheduler to stop it.
func (s *RequestService) StartExpirySweeper(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			if _, err := s.ExpireStale(ctx); err != nil {
				s.Log.Error("[Scheduler] Expiry sweep failed", "error", err)
			}
		}),
		gocron.WithName("expire-stale-requests"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	s.Log.Info("[Scheduler] Expiry sweeper started", "interval", interval.String())
	return sched, nil
}
