package store

import (
	"context"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// StatsStore aggregates per-user usage counters.
type StatsStore struct {
	doc *document[*UsageStats]
	now func() time.Time
}

// Record adds one billed exchange (or several) to username's counters and
// recomputes the favorite model and most active day.
func (s *StatsStore) Record(ctx context.Context, username string, messages, tokens int, model string) (*UsageStats, error) {
	var stats *UsageStats
	err := s.doc.update(ctx, func(all map[string]*UsageStats) error {
		stats = all[username]
		if stats == nil {
			stats = &UsageStats{}
			all[username] = stats
		}
		now := s.now()

		stats.TotalMessages += messages
		stats.TotalTokensUsed += tokens
		addToBucket(&stats.DailyUsage, now.Format(dayLayout), messages, tokens)
		addToBucket(&stats.MonthlyUsage, now.Format(monthLayout), messages, tokens)

		count, _ := stats.ModelUsage.Get(model)
		stats.ModelUsage.Set(model, count+1)

		stats.FavoriteModel = favoriteModel(&stats.ModelUsage)
		stats.MostActiveDay = mostActiveDay(&stats.DailyUsage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Get returns username's counters; users without activity get zero stats.
func (s *StatsStore) Get(ctx context.Context, username string) (*UsageStats, error) {
	var stats *UsageStats
	err := s.doc.view(ctx, func(all map[string]*UsageStats) error {
		stats = all[username]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &UsageStats{}
	}
	return stats, nil
}

func (s *StatsStore) Delete(ctx context.Context, username string) error {
	return s.doc.update(ctx, func(all map[string]*UsageStats) error {
		if _, ok := all[username]; !ok {
			return errNoChange
		}
		delete(all, username)
		return nil
	})
}

func addToBucket(m *OrderedMap[UsageBucket], key string, messages, tokens int) {
	b, _ := m.Get(key)
	b.Messages += messages
	b.Tokens += tokens
	m.Set(key, b)
}

// favoriteModel is the first model with the strictly highest count.
func favoriteModel(usage *OrderedMap[int]) string {
	best, bestCount := "", 0
	for i, k := range usage.Keys() {
		if c, _ := usage.Get(k); i == 0 || c > bestCount {
			best, bestCount = k, c
		}
	}
	return best
}

func mostActiveDay(daily *OrderedMap[UsageBucket]) string {
	best, bestCount := "", 0
	for i, k := range daily.Keys() {
		if b, _ := daily.Get(k); i == 0 || b.Messages > bestCount {
			best, bestCount = k, b.Messages
		}
	}
	return best
}
