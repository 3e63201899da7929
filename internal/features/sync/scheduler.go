package sync

import (
	"context"
	"fmt"
	"sync"

	"pos-billing/internal/config"
	"pos-billing/internal/localstore"
	"pos-billing/internal/remote"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the sync controller on fixed wall-clock intervals: one job
// pulls remote changes into the local snapshots, an independent job pushes
// locally-originated records back. Each iteration runs to completion before
// the next fires; there is no mid-cycle cancellation.
type Scheduler struct {
	service SyncService
	files   *localstore.Store
	hub     *EventHub
	log     *zap.Logger

	cron     *cron.Cron
	interval int

	mu         sync.Mutex
	pullCursor string
}

func NewScheduler(cfg *config.Config, service SyncService, files *localstore.Store, hub *EventHub, log *zap.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		files:    files,
		hub:      hub,
		log:      log,
		interval: cfg.SyncIntervalMinutes,
	}
}

// Start performs the one-time catch-up sync synchronously, then registers the
// periodic pull and push jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.initialFullSync(ctx)

	s.cron = cron.New()
	every := fmt.Sprintf("@every %dm", s.interval)

	if _, err := s.cron.AddFunc(every, s.runPull); err != nil {
		return fmt.Errorf("failed to schedule pull job: %w", err)
	}
	if _, err := s.cron.AddFunc(every, s.runPush); err != nil {
		return fmt.Errorf("failed to schedule push job: %w", err)
	}

	s.cron.Start()
	s.log.Info("background sync scheduler started", zap.Int("interval_minutes", s.interval))
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron != nil {
		// Waits for an in-flight cycle to finish; cycles are never aborted.
		<-s.cron.Stop().Done()
	}
	s.log.Info("background sync scheduler stopped")
	return nil
}

// initialFullSync creates any missing local snapshot file before the periodic
// loop begins, so offline reads have something to fall back on.
func (s *Scheduler) initialFullSync(ctx context.Context) {
	missing := false
	for _, table := range DefaultPullTables {
		if !s.files.Exists(table) {
			missing = true
			break
		}
	}
	if !missing {
		return
	}

	s.log.Info("missing local snapshots, running initial full sync")
	result := s.service.PullSync(ctx, "", nil)
	if result.Success {
		s.service.MergeSnapshots(result)
		s.setCursor(result.SyncTimestamp)
	} else {
		s.log.Error("initial full sync failed", zap.Strings("errors", result.Errors))
	}

	// Tables the remote could not serve still get an empty snapshot so every
	// later read has a well-formed file.
	for _, table := range DefaultPullTables {
		if s.files.Exists(table) {
			continue
		}
		spec := SpecFor(table)
		var empty any = []remote.Record{}
		if spec.Singleton {
			empty = remote.Record{}
		}
		if err := s.files.Write(table, empty); err != nil {
			s.log.Error("failed to seed snapshot", zap.String("table", table), zap.Error(err))
		}
	}
}

func (s *Scheduler) runPull() {
	ctx := context.Background()
	cursor := s.getCursor()
	s.log.Info("background pull sync starting",
		zap.String("cursor", cursor), zap.Int("next_in_minutes", s.interval))

	result := s.service.PullSync(ctx, cursor, nil)
	if result.Success {
		s.service.MergeSnapshots(result)
		s.setCursor(result.SyncTimestamp)
		s.log.Info("background pull sync completed")
	} else {
		s.log.Error("background pull sync failed", zap.Strings("errors", result.Errors))
	}

	s.hub.Broadcast("pull", result)
}

func (s *Scheduler) runPush() {
	ctx := context.Background()

	// Failed immediate syncs get their bounded retries first.
	s.service.RetryPending(ctx)

	syncData := make(map[string][]remote.Record)
	for _, table := range PushOriginTables {
		if records := s.files.ReadList(table); len(records) > 0 {
			syncData[table] = records
		}
	}
	if len(syncData) == 0 {
		return
	}

	result := s.service.PushSync(ctx, syncData)
	if result.Success {
		s.log.Info("background push sync completed", zap.Int("synced", result.Stats.Synced))
	} else {
		s.log.Error("background push sync failed", zap.Strings("errors", result.Errors))
	}

	s.hub.Broadcast("push", result)
}

func (s *Scheduler) getCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullCursor
}

func (s *Scheduler) setCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullCursor = cursor
}
