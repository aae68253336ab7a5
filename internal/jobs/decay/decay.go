package decay

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
	"github.com/yungbote/bookrec-backend/internal/services"
)

const DefaultLambda = 0.1

type Result struct {
	Users       int `json:"users"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}

// Job applies time decay to every user holding active negative feedback.
type Job struct {
	feedback services.NegativeFeedbackService
	repo     repos.NegativeFeedbackRepo
	schedule string
	lambda   float64
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

func NewJob(feedback services.NegativeFeedbackService, repo repos.NegativeFeedbackRepo, schedule string, lambda float64, baseLog *logger.Logger) *Job {
	if schedule == "" {
		schedule = "@daily"
	}
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	return &Job{
		feedback: feedback,
		repo:     repo,
		schedule: schedule,
		lambda:   lambda,
		log:      baseLog.With("component", "DecayJob"),
	}
}

func (j *Job) String() string { return "feedback-decay" }

// RunOnce decays every active user. A failing user is logged and skipped.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	userIDs, err := j.repo.ListActiveUserIDs(dbctx.Context{Ctx: ctx})
	if err != nil {
		return res, fmt.Errorf("list active feedback users: %w", err)
	}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := j.feedback.Decay(ctx, userID, j.lambda)
		if err != nil {
			res.Failed++
			j.log.Warn("Decay failed", "user_id", userID, "error", err)
			continue
		}
		res.Users++
		res.Deactivated += n
	}
	return res, nil
}

// Serve implements suture.Service: it runs RunOnce on the cron schedule until
// ctx is cancelled. Overlapping ticks are skipped.
func (j *Job) Serve(ctx context.Context) error {
	c := rcron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.tick(ctx) }); err != nil {
		return fmt.Errorf("decay schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.log.Info("Decay scheduler started", "schedule", j.schedule, "lambda", j.lambda)

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		j.log.Warn("Decay run still in progress at shutdown")
	}
	return ctx.Err()
}

func (j *Job) tick(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.log.Warn("Skipping decay tick, previous run still active")
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	res, err := j.RunOnce(ctx)
	if err != nil {
		j.log.Warn("Decay run aborted", "error", err, "users", res.Users)
		return
	}
	j.log.Info("Decay run complete",
		"users", res.Users,
		"deactivated", res.Deactivated,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
