// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartBatchScheduler runs the batch sweep every interval until the returned
// scheduler is shut down. Overlapping runs are skipped.
func (s *BatchService) StartBatchScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.Run(ctx); err != nil {
				log.Printf("[Scheduler] batch sweep failed: %v", err)
			}
		}),
		gocron.WithName("pplp-batch-processor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule batch sweep: %w", err)
	}

	sched.Start()
	log.Printf("[Scheduler] ✅ batch processor every %s", interval)
	return sched, nil
}
