package sweeper

import (
	"context"

	"github.com/riverqueue/river"
)

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "expire_sweep" }

// Worker runs the periodic expiration sweep. Scheduling lives in main via
// River's periodic jobs.
type Worker struct {
	river.WorkerDefaults[SweepArgs]
	svc *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

func (w *Worker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	_, err := w.svc.Sweep(ctx)
	return err
}
