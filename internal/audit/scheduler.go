package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/ledger"
)

// Publisher receives failed audits
type Publisher interface {
	PublishAuditFailed(assetID string, violations []string)
	PublishError(source, message string, err error)
}

// Report summarizes one audit run
type Report struct {
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Pools     int                 `json:"pools"`
	Failed    []*ValidationResult `json:"failed"`
	Warned    []*ValidationResult `json:"warned"`
}

// Scheduler runs the audit over every pool on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	reader    ledger.Reader
	validator *Validator
	events    Publisher
	logger    zerolog.Logger
	mu        sync.Mutex
	running   bool
	last      *Report
}

// NewScheduler creates a new audit scheduler. events may be nil.
func NewScheduler(reader ledger.Reader, events Publisher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		reader:    reader,
		validator: NewValidator(),
		events:    events,
		logger:    logger.With().Str("component", "AuditScheduler").Logger(),
	}
}

// Start registers the audit job on the cron schedule and starts the cron scheduler
func (s *Scheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("audit scheduler already running")
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", schedule).Msg("Audit scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running audit to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Audit scheduler stopped")
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Audit run failed")
		if s.events != nil {
			s.events.PublishError("audit", "scheduled audit did not complete", err)
		}
	}
}

// RunOnce audits every pool now
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}

	assets, err := s.reader.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	for _, a := range assets {
		snap, err := Snapshot(ctx, s.reader, a.ID)
		if err != nil {
			return nil, err
		}
		result := s.validator.ValidatePool(snap)
		report.Pools++

		if !result.IsValid {
			report.Failed = append(report.Failed, result)
			s.logger.Error().
				Str("asset_id", a.ID).
				Strs("errors", result.Errors).
				Msg("Pool failed audit")
			if s.events != nil {
				s.events.PublishAuditFailed(a.ID, result.Errors)
			}
		}
		if len(result.Warnings) > 0 {
			report.Warned = append(report.Warned, result)
			s.logger.Warn().
				Str("asset_id", a.ID).
				Strs("warnings", result.Warnings).
				Msg("Pool audit warnings")
		}
	}

	report.Duration = time.Since(report.StartedAt)
	s.logger.Info().
		Int("pools", report.Pools).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Audit complete")

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent audit report, or nil
func (s *Scheduler) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
