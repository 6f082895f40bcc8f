// Package scanner records which storage keys exist in each tier and which
// bag file they hold, feeding the fact store the auditor reads.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/logging"
	"github.com/dmitrijs2005/preservaudit/internal/metrics"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/facts"
	"github.com/dmitrijs2005/preservaudit/internal/retry"
	"github.com/dmitrijs2005/preservaudit/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Lister enumerates a tier and reads object metadata.
type Lister interface {
	Walk(ctx context.Context, tier audit.Tier, fn func(storage.Object) error) error
	Metadata(ctx context.Context, tier audit.Tier, key string) (map[string]string, error)
}

// Recorder persists tier observations.
type Recorder interface {
	UpsertObservation(ctx context.Context, obs facts.KeyObservation) error
}

// Report counts what one tier scan saw.
type Report struct {
	Tier         audit.Tier `json:"tier"`
	Seen         int        `json:"seen"`
	Recorded     int        `json:"recorded"`
	Unattributed int        `json:"unattributed"`
	Vanished     int        `json:"vanished"`
}

type Scanner struct {
	store      Lister
	recorder   Recorder
	log        logging.Logger
	metrics    *metrics.Metrics
	retryLimit time.Duration
}

func New(store Lister, recorder Recorder, log logging.Logger, m *metrics.Metrics, retryLimit time.Duration) *Scanner {
	return &Scanner{
		store:      store,
		recorder:   recorder,
		log:        log.With("module", "scanner"),
		metrics:    m,
		retryLimit: retryLimit,
	}
}

// Scan scans the given tiers concurrently, one goroutine per tier.
func (s *Scanner) Scan(ctx context.Context, tiers []audit.Tier) ([]Report, error) {
	reports := make([]Report, len(tiers))

	g, ctx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		g.Go(func() error {
			r, err := s.ScanTier(ctx, tier)
			reports[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// ScanTier lists every object of tier and upserts one observation per
// object that carries bag attribution metadata. Objects without it are
// counted as unattributed; objects deleted between listing and metadata
// lookup are counted as vanished.
func (s *Scanner) ScanTier(ctx context.Context, tier audit.Tier) (Report, error) {
	report := Report{Tier: tier}
	log := s.log.With("tier", tier.String())
	log.Info(ctx, "scan started")

	err := s.store.Walk(ctx, tier, func(o storage.Object) error {
		report.Seen++

		var meta map[string]string
		err := retry.Do(ctx, s.retryLimit, func() error {
			var err error
			meta, err = s.store.Metadata(ctx, tier, o.Key)
			if errors.Is(err, common.ErrNotFound) {
				return retry.Permanent(err)
			}
			return err
		})
		if errors.Is(err, common.ErrNotFound) {
			report.Vanished++
			s.metrics.KeyScanned(tier.String(), "vanished")
			return nil
		}
		if err != nil {
			return err
		}

		bag, path := meta[storage.MetaBag], meta[storage.MetaBagPath]
		if bag == "" || path == "" {
			report.Unattributed++
			s.metrics.KeyScanned(tier.String(), "unattributed")
			log.Debug(ctx, "object without bag metadata", "key", o.Key)
			return nil
		}

		obs := facts.KeyObservation{
			Tier:         tier,
			Key:          o.Key,
			Bag:          bag,
			BagPath:      path,
			Size:         o.Size,
			LastModified: o.LastModified,
		}
		if err := retry.Do(ctx, s.retryLimit, func() error {
			return s.recorder.UpsertObservation(ctx, obs)
		}); err != nil {
			return fmt.Errorf("record %s: %w", o.Key, err)
		}
		report.Recorded++
		s.metrics.KeyScanned(tier.String(), "recorded")
		return nil
	})

	if err != nil {
		log.Error(ctx, "scan failed", "error", err, "seen", report.Seen)
		return report, err
	}
	log.Info(ctx, "scan finished",
		"seen", report.Seen, "recorded", report.Recorded,
		"unattributed", report.Unattributed, "vanished", report.Vanished)
	return report, nil
}
