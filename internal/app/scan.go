package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/scanner"
)

// Scan records the keys of the configured tiers in the fact store.
func (app *App) Scan(ctx context.Context) error {
	tiers, err := scanTiers(app.config.ScanTier)
	if err != nil {
		return err
	}

	store, err := app.store(ctx)
	if err != nil {
		return fmt.Errorf("storage init error: %w", err)
	}

	s := scanner.New(store, app.repos.Facts(app.db), app.logger, app.metrics, app.config.RetryMaxElapsed)

	reports, err := s.Scan(ctx, tiers)
	for _, r := range reports {
		app.logger.Info(ctx, "tier scanned",
			"tier", r.Tier.String(), "seen", r.Seen, "recorded", r.Recorded,
			"unattributed", r.Unattributed, "vanished", r.Vanished)
	}
	return err
}

func scanTiers(s string) ([]audit.Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return []audit.Tier{audit.Primary, audit.Cold}, nil
	}
	t, err := audit.ParseTier(s)
	if err != nil {
		return nil, err
	}
	return []audit.Tier{t}, nil
}
