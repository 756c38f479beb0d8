package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	// terminal rows are kept for inspection until they exhausted this many
	// publish attempts
	defaultTerminalAttempts = 10
)

type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxPruner
	RetentionDays    int
	TerminalAttempts int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// NewOutboxRetentionJob prunes order events that were published, or given up
// on, longer ago than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	attempts := params.TerminalAttempts
	if attempts <= 0 {
		attempts = defaultTerminalAttempts
	}
	return &outboxRetentionJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repository,
		window:   time.Duration(days) * 24 * time.Hour,
		attempts: attempts,
		now:      time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     outboxPruner
	window   time.Duration
	attempts int
	now      func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.attempts)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention cleanup complete")
	return nil
}
