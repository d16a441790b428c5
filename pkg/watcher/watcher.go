package watcher

import (
	"context"
	"time"

	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/feed"
	"github.com/nexuspay/payd/pkg/store"
	"go.uber.org/zap"
)

// DefaultInterval is the polling interval against the execution network.
const DefaultInterval = 5 * time.Second

// Task identifies one settlement watch. The secrets are the watch's own copy;
// the mapping they came from may expire while the watch is still running.
type Task struct {
	OrderUID      string
	Owner         string
	QuoteID       string
	ExecutionHash string
	SrcChain      string
	DstChain      string
	Secrets       []string

	// Resumed marks a watch re-attached from the registry after a restart.
	// The replay guard only applies to fresh watches: a resumed execution may
	// legitimately already be terminal.
	Resumed bool
}

func (t Task) CrossChain() bool {
	return t.SrcChain != t.DstChain
}

// Watcher polls one execution until it reaches a terminal status, disclosing
// cross-chain secrets along the way, and converges the order's settlement
// fields. Remote errors are not retried: the watch dies and the order stays
// at INITIATED until the supervisor resumes it after a restart.
type Watcher struct {
	task      Task
	store     store.Store
	protocol  dex.Protocol
	publisher feed.Publisher
	logger    *zap.Logger
	interval  time.Duration
}

func New(task Task, str store.Store, protocol dex.Protocol, publisher feed.Publisher, logger *zap.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		task:      task,
		store:     str,
		protocol:  protocol,
		publisher: publisher,
		logger: logger.With(
			zap.String("order", task.OrderUID),
			zap.String("execution-hash", task.ExecutionHash)),
		interval: interval,
	}
}

func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.store.UpdateWatchStatus(w.task.OrderUID, store.WatchInitiated); err != nil {
		return err
	}

	// A hash whose execution is already past pending belongs to a settled
	// order. Someone is replaying it; stop before touching anything else.
	status, err := w.protocol.Status(ctx, w.task.ExecutionHash)
	if err != nil {
		return err
	}
	if status != dex.StatusPending && !w.task.Resumed {
		w.logger.Error("execution hash is already settling or settled, possible replay",
			zap.String("status", string(status)))
		w.publish(ctx, feed.Event{
			Kind:          feed.KindReplay,
			OrderUID:      w.task.OrderUID,
			Owner:         w.task.Owner,
			ExecutionHash: w.task.ExecutionHash,
			At:            time.Now().UTC(),
		})
		// Mark the registry row done so restarts stop resuming a replay.
		return w.store.FinishWatch(w.task.ExecutionHash)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.protocol.DiscloseReady(ctx, w.task.ExecutionHash, w.task.Secrets); err != nil {
			return err
		}

		status, err := w.protocol.Status(ctx, w.task.ExecutionHash)
		if err != nil {
			return err
		}
		if status.Terminal() {
			return w.settle(ctx, status)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) settle(ctx context.Context, status dex.Status) error {
	outcome := status.Outcome()
	if err := w.store.UpdateSettlement(w.task.OrderUID, store.WatchSuccess, outcome); err != nil {
		return err
	}
	if err := w.store.FinishWatch(w.task.ExecutionHash); err != nil {
		return err
	}
	w.logger.Info("settlement converged", zap.String("outcome", string(outcome)))
	w.publish(ctx, feed.Event{
		Kind:          feed.KindSettled,
		OrderUID:      w.task.OrderUID,
		Owner:         w.task.Owner,
		ExecutionHash: w.task.ExecutionHash,
		Outcome:       string(outcome),
		At:            time.Now().UTC(),
	})
	return nil
}

func (w *Watcher) publish(ctx context.Context, event feed.Event) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Error("failed to publish settlement event", zap.Error(err))
	}
}
