package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/models"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Scraper runs scrapes and the scrape-related commands.
type Scraper interface {
	RunAll(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// CommandStore is the queue external tools write commands into.
type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

type Scheduler struct {
	cfg          config.SchedulerConfig
	scraper      Scraper
	commands     CommandStore
	dedupWorker  Triggerable
	logger       *zap.Logger
	cron         *cron.Cron
	pollInterval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg config.SchedulerConfig, scraper Scraper, commands CommandStore, dedupWorker Triggerable, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:          cfg,
		scraper:      scraper,
		commands:     commands,
		dedupWorker:  dedupWorker,
		logger:       logger.Named("scheduler"),
		cron:         cron.New(),
		pollInterval: 2 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.commands != nil {
		go s.pollCommands(ctx)
	}

	if s.cfg.Cron != "" {
		s.logger.Info("starting scheduler", zap.String("cron", s.cfg.Cron))
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			if err := s.TriggerNow(ctx); err != nil {
				s.logger.Error("scheduled run error", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		s.logger.Info("starting scheduler", zap.Duration("interval", s.cfg.Interval))
		go func() {
			ticker := time.NewTicker(s.cfg.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.TriggerNow(ctx); err != nil {
						s.logger.Error("scheduled run error", zap.Error(err))
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		s.logger.Info("no schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		close(s.stopCh)
	})
}

// TriggerNow scrapes every site and then queues a dedup pass over the result.
// The dedup pass is queued even when some sites failed.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	err := s.scraper.RunAll(ctx)
	if s.dedupWorker != nil {
		s.dedupWorker.Trigger()
	}
	return err
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		s.logger.Error("error getting commands", zap.Error(err))
		return
	}

	for i := range cmds {
		cmd := &cmds[i]
		s.logger.Info("processing command", zap.String("command", string(cmd.Command)), zap.Int64("id", cmd.ID))
		if err := s.handleCommand(ctx, cmd); err != nil {
			s.logger.Error("command error", zap.String("command", string(cmd.Command)), zap.Error(err))
		}
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			s.logger.Error("error marking command processed", zap.Int64("id", cmd.ID), zap.Error(err))
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdDedupNow:
		if s.dedupWorker == nil {
			return fmt.Errorf("dedup worker not configured")
		}
		s.dedupWorker.Trigger()
		s.logger.Info("dedup worker triggered via command")
		return nil
	default:
		return s.scraper.HandleCommand(ctx, cmd)
	}
}
