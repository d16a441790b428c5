package watcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/feed"
	"github.com/nexuspay/payd/pkg/store"
	"go.uber.org/zap"
)

// Supervisor owns all settlement watch goroutines. Every watch is registered
// in the persisted registry before it is spawned, so Resume can re-attach to
// whatever was in flight when the process last stopped.
type Supervisor struct {
	store     store.Store
	client    *dex.Client
	publisher feed.Publisher
	logger    *zap.Logger
	interval  time.Duration

	quit chan struct{}
	wg   *sync.WaitGroup
}

func NewSupervisor(str store.Store, client *dex.Client, publisher feed.Publisher, logger *zap.Logger, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{
		store:     str,
		client:    client,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		quit:      make(chan struct{}),
		wg:        new(sync.WaitGroup),
	}
}

// StartWatch registers the task and spawns its watch goroutine. Exactly one
// watch per execution hash: a duplicate registration fails on the registry's
// unique index and no second goroutine starts.
func (s *Supervisor) StartWatch(task Task) error {
	secrets, err := json.Marshal(task.Secrets)
	if err != nil {
		return err
	}
	watch := store.Watch{
		ExecutionHash: task.ExecutionHash,
		QuoteID:       task.QuoteID,
		OrderUID:      task.OrderUID,
		Owner:         task.Owner,
		SrcChain:      task.SrcChain,
		DstChain:      task.DstChain,
		Secrets:       string(secrets),
	}
	if err := s.store.PutWatch(&watch); err != nil {
		return err
	}
	s.spawn(task)
	return nil
}

// Resume re-attaches a watch goroutine to every registry row that has not
// finished. Called once at startup.
func (s *Supervisor) Resume() error {
	watches, err := s.store.PendingWatches()
	if err != nil {
		return err
	}
	for _, watch := range watches {
		var secrets []string
		if watch.Secrets != "" {
			if err := json.Unmarshal([]byte(watch.Secrets), &secrets); err != nil {
				s.logger.Error("corrupt secrets in watch registry, skipping",
					zap.String("execution-hash", watch.ExecutionHash), zap.Error(err))
				continue
			}
		}
		s.logger.Info("resuming settlement watch",
			zap.String("order", watch.OrderUID),
			zap.String("execution-hash", watch.ExecutionHash))
		s.spawn(Task{
			OrderUID:      watch.OrderUID,
			Owner:         watch.Owner,
			QuoteID:       watch.QuoteID,
			ExecutionHash: watch.ExecutionHash,
			SrcChain:      watch.SrcChain,
			DstChain:      watch.DstChain,
			Secrets:       secrets,
			Resumed:       true,
		})
	}
	return nil
}

// Stop waits for all watch goroutines to observe the quit signal.
func (s *Supervisor) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Supervisor) spawn(task Task) {
	protocol := dex.ProtocolFor(task.SrcChain, task.DstChain, s.client, s.logger)
	w := New(task, s.store, protocol, s.publisher, s.logger, s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := w.Watch(ctx); err != nil {
			s.logger.Error("settlement watch aborted",
				zap.String("order", task.OrderUID),
				zap.String("execution-hash", task.ExecutionHash),
				zap.Error(err))
		}
	}()
}
