package internal

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dhedge-rebalancer/config"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/metrics"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/report"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/services/rebalance"
)

const stageConfirm = "confirm"

// FundClient reads the fund and submits exchanges on behalf of its manager.
type FundClient interface {
	ReadSnapshot(ctx context.Context) (domain.Snapshot, error)
	SubmitSwaps(ctx context.Context, swaps []domain.Swap) ([]common.Hash, error)
	Manager() common.Address
	Pool() common.Address
}

// RunHistory stores finished runs.
type RunHistory interface {
	Save(record domain.RunRecord) error
}

// ConfirmFunc asks whether planned swaps may be submitted.
type ConfirmFunc func(swaps []domain.Swap) (bool, error)

type Option func(*Rebalancer)

// WithHistory enables the run history.
func WithHistory(h RunHistory) Option {
	return func(r *Rebalancer) { r.history = h }
}

// WithConfirm sets the confirmation prompt used when assume_yes is off.
func WithConfirm(f ConfirmFunc) Option {
	return func(r *Rebalancer) { r.confirm = f }
}

// WithOutput redirects status tables, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(r *Rebalancer) { r.out = w }
}

// Rebalancer drives the fund towards its target weights.
type Rebalancer struct {
	conf    config.Config
	client  FundClient
	history RunHistory
	metrics *metrics.Recorder
	confirm ConfirmFunc
	out     io.Writer
	l       *zap.Logger
	now     func() time.Time
}

func NewRebalancer(l *zap.Logger, conf config.Config, client FundClient, opts ...Option) *Rebalancer {
	r := &Rebalancer{
		conf:    conf,
		client:  client,
		metrics: metrics.NewRecorder(),
		out:     os.Stdout,
		l:       l,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Loop runs a rebalance immediately and then every configured interval.
// The first failed run stops the loop.
func (r *Rebalancer) Loop(ctx context.Context) error {
	if _, err := r.Run(ctx); err != nil {
		return err
	}
	if r.conf.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.conf.Interval)
	defer ticker.Stop()

	r.l.Info("Starting rebalance loop", zap.Duration("interval", r.conf.Interval))

	for {
		select {
		case <-ctx.Done():
			r.l.Info("Context done, stopping rebalance loop")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				return err
			}
		}
	}
}

// Run performs a single rebalance: read the fund, plan swaps and submit them.
func (r *Rebalancer) Run(ctx context.Context) (domain.RunRecord, error) {
	if r.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.conf.Timeout)
		defer cancel()
	}

	record := domain.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Pool:      r.client.Pool().Hex(),
		Manager:   r.client.Manager().Hex(),
	}
	l := r.l.With(zap.String("run_id", record.ID))

	snapshot, err := r.client.ReadSnapshot(ctx)
	if err != nil {
		return r.fail(l, record, err)
	}
	record.Snapshot = snapshot

	pool, err := rebalance.NewPool(r.conf.TargetWeights, snapshot, r.conf.MinTradeValue)
	if err != nil {
		return r.fail(l, record, err)
	}
	r.metrics.ObservePool(pool)
	if err := report.RenderStatus(r.out, pool); err != nil {
		l.Warn("failed to render pool status", zap.Error(err))
	}

	swaps := pool.Plan()
	record.Swaps = swaps
	r.metrics.ObservePlan(len(swaps))

	if len(swaps) == 0 {
		l.Info("pool is balanced", zap.Float64("total_value", pool.TotalValue()))
		record.Status = domain.RunStatusBalanced
		return r.finish(l, record), nil
	}

	if err := report.RenderPlan(r.out, pool, swaps); err != nil {
		l.Warn("failed to render plan", zap.Error(err))
	}

	if r.conf.DryRun {
		l.Info("dry run, swaps are not submitted", zap.Int("swaps", len(swaps)))
		record.Status = domain.RunStatusPlanned
		return r.finish(l, record), nil
	}

	if !r.conf.AssumeYes {
		ok, err := r.ask(swaps)
		if err != nil {
			return r.fail(l, record, err)
		}
		if !ok {
			l.Info("submission declined", zap.Int("swaps", len(swaps)))
			record.Status = domain.RunStatusPlanned
			return r.finish(l, record), nil
		}
	}

	hashes, err := r.client.SubmitSwaps(ctx, swaps)
	accepted := 0
	for i, h := range hashes {
		// hashes line up with swaps, a zero hash marks a swap the node did not take
		if h == (common.Hash{}) {
			record.TxHashes = append(record.TxHashes, "")
			continue
		}
		accepted++
		record.TxHashes = append(record.TxHashes, h.Hex())
		l.Info("swap submitted",
			zap.String("from", swaps[i].From),
			zap.String("to", swaps[i].To),
			zap.Float64("from_amount", swaps[i].FromAmount),
			zap.String("tx", h.Hex()))
	}
	r.metrics.ObserveSubmitted(accepted)
	if err != nil {
		return r.fail(l, record, err)
	}
	record.Status = domain.RunStatusSubmitted
	return r.finish(l, record), nil
}

func (r *Rebalancer) ask(swaps []domain.Swap) (bool, error) {
	if r.confirm == nil {
		return false, domain.PreconditionError(stageConfirm, "no confirmation prompt available, pass --yes to submit")
	}
	ok, err := r.confirm(swaps)
	if err != nil {
		return false, domain.PreconditionError(stageConfirm, "confirmation failed: %v", err)
	}
	return ok, nil
}

func (r *Rebalancer) fail(l *zap.Logger, record domain.RunRecord, err error) (domain.RunRecord, error) {
	stage := domain.StageOf(err)
	kind, _ := domain.KindOf(err)
	l.Error("rebalance run failed",
		zap.String("stage", stage),
		zap.String("kind", string(kind)),
		zap.Strings("submitted", record.TxHashes),
		zap.Error(err))

	record.Status = domain.RunStatusFailed
	record.Error = err.Error()
	r.metrics.ObserveFailure(stage)
	return r.finish(l, record), errors.Wrap(err, "rebalance")
}

func (r *Rebalancer) finish(l *zap.Logger, record domain.RunRecord) domain.RunRecord {
	record.FinishedAt = r.now()
	r.metrics.ObserveRunFinished(record.FinishedAt)

	if r.history != nil {
		if err := r.history.Save(record); err != nil {
			l.Error("failed to save run record", zap.Error(err))
		}
	}
	if r.conf.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.conf.MetricsFile); err != nil {
			l.Error("failed to write metrics", zap.Error(err))
		}
	}
	return record
}
