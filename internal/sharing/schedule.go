package sharing

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// jobTimeout bounds one scheduled job run.
const jobTimeout = 10 * time.Minute

// Job is a named periodic task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Schedule runs jobs on a cron spec such as "@every 1h" or "0 3 * * *".
// A run that is still going when the next one is due is skipped.
type Schedule struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewSchedule registers jobs under spec. It does not start them.
func NewSchedule(spec string, log *zap.Logger, jobs ...Job) (*Schedule, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Schedule{cron: c, log: log}

	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(spec, func() { s.run(j) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schedule) run(j Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scheduled job panicked", zap.String("job", j.Name), zap.Any("panic", rec))
		}
	}()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	s.log.Debug("scheduled job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}

// Start begins running jobs in the background.
func (s *Schedule) Start() { s.cron.Start() }

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Schedule) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// ReaperJob adapts a Reaper for a Schedule. onDone, when set, sees every
// summary, including partial ones from a failed run.
func ReaperJob(r *Reaper, onDone func(*ReapSummary)) Job {
	return Job{Name: "reaper", Run: func(ctx context.Context) error {
		sum, err := r.Execute(ctx)
		if sum != nil && onDone != nil {
			onDone(sum)
		}
		return err
	}}
}
