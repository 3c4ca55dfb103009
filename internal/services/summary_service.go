package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// PerformanceCalculator computes a wallet's performance over a timespan.
type PerformanceCalculator interface {
	Calculate(ctx context.Context, walletID string, timespan models.Timespan) (*models.PerformanceResult, error)
}

// SummaryService records at most one performance snapshot per wallet,
// timespan and UTC day.
type SummaryService struct {
	summaries repositories.SummaryRepository
	wallets   repositories.WalletRepository
	engine    PerformanceCalculator
	now       func() time.Time
	log       *logrus.Entry
}

// NewSummaryService creates a summary recorder.
func NewSummaryService(summaries repositories.SummaryRepository, wallets repositories.WalletRepository,
	engine PerformanceCalculator) *SummaryService {
	return &SummaryService{
		summaries: summaries,
		wallets:   wallets,
		engine:    engine,
		now:       time.Now,
		log:       logrus.WithField("component", "summary_service"),
	}
}

// SaveDaily records the summary for today (UTC). A snapshot that already
// exists, whether caught by the existence check or by losing the unique
// index race, is a no-op.
func (s *SummaryService) SaveDaily(ctx context.Context, walletID string, timespan models.Timespan, summary *models.PerformanceSummary) error {
	if summary == nil {
		return nil
	}

	date := s.now().UTC().Format("2006-01-02")

	exists, err := s.summaries.ExistsForDay(ctx, walletID, timespan, date)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.summaries.Insert(ctx, &models.DailySummary{
		WalletID: walletID,
		Timespan: timespan,
		Date:     date,
		Summary:  summary,
	})
	if errors.Is(err, repositories.ErrDuplicateSummary) {
		s.log.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"timespan":  timespan,
			"date":      date,
		}).Debug("Summary already recorded, skipping")
		return nil
	}
	return err
}

// SaveDailyAsync fires SaveDaily on a detached context so a request that
// triggered the computation does not wait on, or cancel, the snapshot write.
func (s *SummaryService) SaveDailyAsync(walletID string, timespan models.Timespan, summary *models.PerformanceSummary) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.SaveDaily(ctx, walletID, timespan, summary); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"wallet_id": walletID,
				"timespan":  timespan,
			}).Warn("Async summary save failed")
		}
	}()
}

// RunDailyBatch computes and records snapshots for every wallet across all
// fixed timespans. Per-wallet failures are logged and the sweep continues.
func (s *SummaryService) RunDailyBatch(ctx context.Context) {
	walletIDs, err := s.wallets.ListIDs(ctx)
	if err != nil {
		s.log.WithError(err).Error("Daily summary batch: failed to list wallets")
		return
	}

	var saved, failed int
	for _, walletID := range walletIDs {
		for _, timespan := range models.FixedTimespans() {
			result, err := s.engine.Calculate(ctx, walletID, timespan)
			if err != nil {
				failed++
				s.log.WithError(err).WithFields(logrus.Fields{
					"wallet_id": walletID,
					"timespan":  timespan,
				}).Warn("Daily summary batch: computation failed")
				continue
			}
			if result.Summary == nil {
				continue
			}
			if err := s.SaveDaily(ctx, walletID, timespan, result.Summary); err != nil {
				failed++
				s.log.WithError(err).WithFields(logrus.Fields{
					"wallet_id": walletID,
					"timespan":  timespan,
				}).Warn("Daily summary batch: save failed")
				continue
			}
			saved++
		}
	}

	s.log.WithFields(logrus.Fields{
		"wallets": len(walletIDs),
		"saved":   saved,
		"failed":  failed,
	}).Info("Daily summary batch finished")
}

// History returns recorded snapshots for a wallet and timespan, newest first.
func (s *SummaryService) History(ctx context.Context, walletID string, timespan models.Timespan, limit int64) ([]models.DailySummary, error) {
	return s.summaries.FindByWallet(ctx, walletID, timespan, limit)
}
