// Package scheduler drives periodic provider updates: it decides which
// providers are due, serializes each run behind a distributed lock, pulls
// batches from the feeding service and hands them to the ingest pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"

	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/feeding"
	"github.com/IvanJelicSF/superdesk-core/app/ingest"
	"github.com/IvanJelicSF/superdesk-core/app/notify"
)

// Pad added to the lock TTL beyond the run deadline so the lock outlives a
// run that hits its timeout.
const lockTTLPad = 10 * time.Second

// ProviderStore is the provider persistence the scheduler needs.
type ProviderStore interface {
	GetAll(ctx context.Context) ([]*ingest.Provider, error)
	GetByName(ctx context.Context, name string) (*ingest.Provider, error)
	GetByID(ctx context.Context, id string) (*ingest.Provider, error)
	UpdateRunState(ctx context.Context, id string, update ingest.ProviderRunUpdate, etag string) error
}

type Scheduler struct {
	providers    ProviderStore
	configs      *config.Cache
	orchestrator *ingest.Orchestrator
	locks        ingest.LockService
	notifier     notify.Notifier

	pool     *ants.Pool
	cron     *cron.Cron
	interval time.Duration
	runTTL   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(providers ProviderStore, configs *config.Cache, orchestrator *ingest.Orchestrator,
	locks ingest.LockService, notifier notify.Notifier, workerCount, intervalSeconds, ttlSeconds int) (*Scheduler, error) {

	pool, err := ants.NewPool(workerCount, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		providers:    providers,
		configs:      configs,
		orchestrator: orchestrator,
		locks:        locks,
		notifier:     notifier,
		pool:         pool,
		cron:         cron.New(),
		interval:     time.Duration(intervalSeconds) * time.Second,
		runTTL:       time.Duration(ttlSeconds) * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the periodic sweep. The first sweep runs immediately.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if err := s.UpdateAll(s.ctx, "", false); err != nil {
			slog.Error("Scheduled update failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.cron.Start()

	go func() {
		if err := s.UpdateAll(s.ctx, "", false); err != nil {
			slog.Error("Startup update failed", "error", err)
		}
	}()

	slog.Info("Scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the sweep trigger and the worker pool. Runs already dispatched
// observe the cancelled context.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.pool.Release()
	slog.Info("Scheduler stopped")
}

// UpdateAll sweeps providers and dispatches updates. With a provider name
// only that provider is considered; with sync the run happens inline, ignores
// the schedule and re-reads the provider's full history.
func (s *Scheduler) UpdateAll(ctx context.Context, providerName string, sync bool) error {
	var providers []*ingest.Provider
	if providerName != "" {
		provider, err := s.providers.GetByName(ctx, providerName)
		if err != nil {
			return fmt.Errorf("failed to load provider %s: %w", providerName, err)
		}
		if provider == nil {
			return fmt.Errorf("provider %s not found", providerName)
		}
		providers = []*ingest.Provider{provider}
	} else {
		all, err := s.providers.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load providers: %w", err)
		}
		providers = all
	}

	now := time.Now().UTC()
	for _, provider := range providers {
		if provider.IsClosed {
			continue
		}
		if !feeding.IsRegistered(provider.FeedingService, provider.FeedParser) {
			slog.Debug("Feeding service or parser not registered, skipping",
				"provider", provider.Name, "service", provider.FeedingService)
			continue
		}
		if !sync && !provider.IsScheduled(now) {
			continue
		}

		providerConfig, err := s.configs.GetConfig(provider.Name)
		if err != nil {
			slog.Warn("Provider has no configuration, skipping",
				"provider", provider.Name, "error", err)
			continue
		}

		if sync {
			s.runProvider(ctx, provider, providerConfig, true)
			continue
		}

		p, c := provider, providerConfig
		if err := s.pool.Submit(func() {
			s.runProvider(s.ctx, p, c, false)
		}); err != nil {
			slog.Error("Failed to dispatch provider update",
				"provider", provider.Name, "error", err)
		}
	}

	return nil
}

// RunOnce updates a single provider inline, ignoring the schedule, and
// returns only when the run has finished. With sync the provider's full
// history is re-read. This is the one-shot command line entry point; the
// periodic sweep dispatches through UpdateAll instead.
func (s *Scheduler) RunOnce(ctx context.Context, providerName string, sync bool) error {
	provider, err := s.providers.GetByName(ctx, providerName)
	if err != nil {
		return fmt.Errorf("failed to load provider %s: %w", providerName, err)
	}
	if provider == nil {
		return fmt.Errorf("provider %s not found", providerName)
	}
	if provider.IsClosed {
		return fmt.Errorf("provider %s is closed", providerName)
	}
	if !feeding.IsRegistered(provider.FeedingService, provider.FeedParser) {
		return fmt.Errorf("feeding service %q is not registered", provider.FeedingService)
	}

	providerConfig, err := s.configs.GetConfig(provider.Name)
	if err != nil {
		return fmt.Errorf("provider %s has no configuration: %w", provider.Name, err)
	}

	s.runProvider(ctx, provider, providerConfig, sync)
	return nil
}

func (s *Scheduler) runProvider(ctx context.Context, provider *ingest.Provider, providerConfig *config.Config, sync bool) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTTL)
	defer cancel()

	if err := s.updateProvider(runCtx, provider, providerConfig, sync); err != nil {
		ferr := &ingest.IngestFileError{Provider: provider.Name, Err: err}
		slog.Error("Failed to ingest file", "provider", provider.Name, "error", ferr)
	}
}

// updateProvider runs one full provider update under the provider's lock.
func (s *Scheduler) updateProvider(ctx context.Context, provider *ingest.Provider, providerConfig *config.Config, sync bool) error {
	lockName := fmt.Sprintf("lock_ingest:%s:%s", provider.Name, provider.ID)
	owner := uuid.NewString()
	ttl := s.runTTL + lockTTLPad

	acquired, err := s.locks.Acquire(ctx, lockName, owner, ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		if sync {
			slog.Error("Update is already running", "provider", provider.Name)
		} else {
			slog.Debug("Update is already running, skipping", "provider", provider.Name)
		}
		return nil
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockName, owner); err != nil {
			slog.Error("Failed to release lock", "lock", lockName, "error", err)
		}
	}()

	if sync {
		// Rewind the provider's cursor so the service re-fetches everything
		// it still serves.
		past := time.Now().UTC().AddDate(-10, 0, 0)
		provider.LastUpdated = &past
	}

	svc, ok := feeding.Get(provider.FeedingService)
	if !ok {
		return fmt.Errorf("feeding service %q is not registered", provider.FeedingService)
	}

	now := time.Now().UTC()
	run := &ingest.ProviderRunUpdate{LastUpdated: &now}

	cursor, err := svc.Update(ctx, provider, &providerConfig.Service, run)
	if err != nil {
		return err
	}

	var failed []string
	for {
		renewed, err := s.locks.Renew(ctx, lockName, owner, ttl)
		if err != nil || !renewed {
			slog.Warn("Lost lock while updating provider", "provider", provider.Name, "error", err)
			return nil
		}

		items, err := cursor.Next(ctx, failed)
		if errors.Is(err, feeding.Done) {
			break
		}
		if err != nil {
			return err
		}

		failedSet, err := s.orchestrator.IngestItems(ctx, items, provider, svc,
			providerConfig.RuleSet, providerConfig.RoutingScheme)
		if err != nil {
			return err
		}

		failed = failed[:0]
		for guid := range failedSet {
			failed = append(failed, guid)
		}

		stampRunTimestamps(run, items)
	}

	return s.finishRun(ctx, provider, run)
}

// finishRun persists the run state against a freshly read provider record and
// emits the run's notifications.
func (s *Scheduler) finishRun(ctx context.Context, provider *ingest.Provider, run *ingest.ProviderRunUpdate) error {
	fresh, err := s.providers.GetByID(ctx, provider.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read provider: %w", err)
	}
	if fresh == nil {
		return fmt.Errorf("provider %s disappeared during update", provider.Name)
	}

	if err := s.providers.UpdateRunState(ctx, fresh.ID, *run, fresh.ETag); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}

	now := time.Now().UTC()
	if run.LastItemUpdate == nil && fresh.IsIdle(now) {
		slog.Warn("Provider has gone quiet", "provider", fresh.Name,
			"last_item_update", fresh.LastItemUpdate)
		s.notifier.Push(ctx, notify.TopicIngestQuiet, map[string]any{
			"provider":  fresh.Name,
			"idle_time": fresh.IdleTime.Duration().String(),
		})
	}

	slog.Info("Provider updated", "provider", fresh.Name)

	if run.LastItemUpdate != nil {
		s.notifier.Push(ctx, notify.TopicIngestUpdate, map[string]any{
			"provider_id": fresh.ID,
		})
	}

	return nil
}

// stampRunTimestamps moves the run's item timestamps forward from a processed
// batch: arrival is the wall clock per batch received, even an empty one,
// update is the newest versioncreated seen.
func stampRunTimestamps(run *ingest.ProviderRunUpdate, items []*ingest.Item) {
	now := time.Now().UTC()
	run.LastItemArrived = &now

	for _, item := range items {
		if item.VersionCreated == nil {
			continue
		}
		if run.LastItemUpdate == nil || item.VersionCreated.After(*run.LastItemUpdate) {
			versionCreated := *item.VersionCreated
			run.LastItemUpdate = &versionCreated
		}
	}
}
