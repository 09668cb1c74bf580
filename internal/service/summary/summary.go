package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/models"
	"github.com/stockpilot/warehouse/internal/mykafka"
)

// Publisher is the slice of the kafka producer the summary job needs; tests
// substitute a recorder.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// Service gathers each user's sales for the day and dispatches a
// daily_summary notification per user with at least one sale.
type Service struct {
	DB       *gorm.DB
	Producer Publisher
	Log      *slog.Logger
}

// Run executes one summary pass for the calendar day containing now. The
// clock is a parameter so tests can pin it.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	var users []models.User
	if err := s.DB.Find(&users).Error; err != nil {
		return fmt.Errorf("summary: list users failed: %w", err)
	}

	for _, user := range users {
		var sales []models.Sale
		err := s.DB.
			Where("user_id = ? AND created_at >= ? AND created_at < ?", user.ID, startOfDay, endOfDay).
			Find(&sales).Error
		if err != nil {
			s.Log.Error("summary: list sales failed", "user_id", user.ID, "error", err)
			continue
		}
		if len(sales) == 0 {
			continue
		}

		var total float64
		for _, sale := range sales {
			total += sale.TotalAmount
		}

		event := map[string]interface{}{
			"type":         "daily_summary",
			"user_id":      user.ID,
			"email":        user.Email,
			"date":         startOfDay.Format("2006-01-02"),
			"sale_count":   len(sales),
			"total_amount": total,
		}
		if err := s.Producer.PublishEvent(ctx, mykafka.NotificationTopic, fmt.Sprint(user.ID), event); err != nil {
			s.Log.Error("summary: publish failed", "user_id", user.ID, "error", err)
		}
	}

	return nil
}

// Schedule registers the midnight run on the given cron instance. The tick
// fires just past midnight, so the pass steps back a minute to cover the day
// that ended rather than the one that just started.
func Schedule(c *cron.Cron, s *Service) (cron.EntryID, error) {
	return c.AddFunc("0 0 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Run(ctx, time.Now().Add(-time.Minute)); err != nil {
			s.Log.Error("summary: run failed", "error", err)
		}
	})
}
