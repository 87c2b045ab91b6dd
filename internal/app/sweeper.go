package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/observability"
)

// SweepTask removes one kind of expired state and reports how much went.
type SweepTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

type SweepResult struct {
	Name    string
	Removed int64
	Err     error
}

type Sweeper struct {
	interval time.Duration
	tasks    []SweepTask
}

func NewSweeper(interval time.Duration, tasks ...SweepTask) *Sweeper {
	return &Sweeper{interval: interval, tasks: tasks}
}

// PruneTask adapts an in-memory Prune method to a SweepTask.
func PruneTask(name string, prune func() int) SweepTask {
	return SweepTask{Name: name, Run: func(context.Context) (int64, error) {
		return int64(prune()), nil
	}}
}

// RunOnce runs every task in order. A failing task does not stop the rest.
func (s *Sweeper) RunOnce(ctx context.Context) []SweepResult {
	results := make([]SweepResult, 0, len(s.tasks))
	for _, task := range s.tasks {
		removed, err := task.Run(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "sweep task failed", "task", task.Name, "error", err)
		} else {
			observability.RecordSweep(ctx, task.Name, removed)
		}
		results = append(results, SweepResult{Name: task.Name, Removed: removed, Err: err})
	}
	return results
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.interval <= 0 || len(s.tasks) == 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range s.RunOnce(ctx) {
				if r.Err == nil && r.Removed > 0 {
					slog.DebugContext(ctx, "sweep removed expired state", "task", r.Name, "removed", r.Removed)
				}
			}
		}
	}
}
