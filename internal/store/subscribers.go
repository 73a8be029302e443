// Package store persists the subscriber directory and glitch analytics
// cold storage — the entities §3 names minus the router/dispatcher's own
// ephemeral KV-mirrored state.
package store

import (
	"context"
	"fmt"

	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/domain"
)

// SubscriberStore answers the dispatcher's "active subscribers whose tier
// is in the job's target set" query.
type SubscriberStore struct {
	pool *db.Pool
}

// NewSubscriberStore builds a SubscriberStore over pool.
func NewSubscriberStore(pool *db.Pool) *SubscriberStore {
	return &SubscriberStore{pool: pool}
}

// ActiveByTiers returns active subscribers whose tier is one of tiers.
func (s *SubscriberStore) ActiveByTiers(ctx context.Context, tiers []domain.SubscriberTier) ([]domain.Subscriber, error) {
	tierStrs := make([]string, len(tiers))
	for i, t := range tiers {
		tierStrs[i] = string(t)
	}

	rows, err := s.pool.Query(ctx, "active_subscribers_by_tier", tierStrs)
	if err != nil {
		return nil, fmt.Errorf("query active subscribers: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var (
			id, tier                string
			minMargin               float64
			categories, retailers   []string
			minPrice, maxPrice      float64
			enabledChannels         []string
		)
		if err := rows.Scan(&id, &tier, &minMargin, &categories, &retailers, &minPrice, &maxPrice, &enabledChannels); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}

		prefs := domain.SubscriberPrefs{
			MinProfitMargin: minMargin,
			Categories:      categories,
			Retailers:       retailers,
			MinPrice:        minPrice,
			MaxPrice:        maxPrice,
			EnabledChannels: make(map[domain.Channel]bool, len(enabledChannels)),
		}
		for _, ch := range enabledChannels {
			prefs.EnabledChannels[domain.Channel(ch)] = true
		}

		subs = append(subs, domain.Subscriber{ID: id, Tier: domain.SubscriberTier(tier), Prefs: prefs})
	}
	return subs, rows.Err()
}
