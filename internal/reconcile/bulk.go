package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/util"
)

// Report collects the individual results of one bulk run, in input order.
type Report struct {
	RunID     string
	Kind      entity.Kind
	Results   []Result
	Created   int
	Upserted  int
	Unchanged int
	Updated   int
	Failed    int
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) tally() {
	for _, res := range r.Results {
		switch res.Outcome {
		case Created:
			r.Created++
		case Upserted:
			r.Upserted++
		case Unchanged:
			r.Unchanged++
		case Updated:
			r.Updated++
		default:
			r.Failed++
		}
	}
}

// ReconcileAll maps every snapshot and applies rc's policy to each record independently,
// with at most Options.Concurrency in flight. A failure never aborts the other snapshots;
// every outcome is reported and every failure is logged and dead-lettered.
func ReconcileAll[S any, R entity.Record](ctx context.Context, rc *Reconciler[R], snaps []S, mapFn func(S) (R, error)) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Kind:    rc.kind,
		Results: make([]Result, len(snaps)),
	}

	var g errgroup.Group
	g.SetLimit(rc.opts.Concurrency)
	for i, snap := range snaps {
		i, snap := i, snap
		g.Go(func() error {
			report.Results[i] = reconcileSnapshot(ctx, rc, snap, mapFn)
			return nil
		})
	}
	_ = g.Wait()
	report.tally()

	for _, res := range report.Failures() {
		rc.reportFailure(ctx, report.RunID, res)
	}
	rc.logger.Infof("Reconciled %d %s records with policy %s in run %s: %d created, %d upserted, %d updated, %d unchanged, %d failed.",
		len(snaps), rc.kind, rc.Policy(), report.RunID, report.Created, report.Upserted, report.Updated, report.Unchanged, report.Failed)
	return report
}

// reconcileSnapshot maps snap and applies the policy. Mapping failures never reach the store.
func reconcileSnapshot[S any, R entity.Record](ctx context.Context, rc *Reconciler[R], snap S, mapFn func(S) (R, error)) Result {
	r, err := mapFn(snap)
	if err != nil {
		return MappingFailure(rc.kind, err)
	}

	if rc.opts.Limiter != nil {
		if err := rc.opts.Limiter.Wait(ctx); err != nil {
			return rc.result(r.RecordID(), Failed, err)
		}
	}
	return rc.Apply(ctx, r)
}

// MappingFailure reports a snapshot that could not be mapped. The id is recovered from the
// mapping error when it is a valid snowflake.
func MappingFailure(kind entity.Kind, err error) Result {
	res := Result{Kind: kind, Outcome: Failed, Err: err}
	var me *entity.MappingError
	if errors.As(err, &me) {
		res.ID, _ = util.ParseSnowflake(me.ID)
	}
	return res
}

func (rc *Reconciler[R]) reportFailure(ctx context.Context, runID string, res Result) {
	if errors.Is(res.Err, context.Canceled) {
		return
	}
	rc.logger.Errorf("Failed to reconcile %s %d: %s.", res.Kind, res.ID, res.Err)

	if rc.opts.DeadLetters == nil {
		return
	}
	if err := rc.opts.DeadLetters.PushDeadLetter(ctx, runID, res); err != nil {
		rc.logger.Warnf("Failed to dead-letter %s %d: %s.", res.Kind, res.ID, err)
	}
}
