package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/event"
)

// TopScorer is the slice of the ledger the cache falls back to.
type TopScorer interface {
	TopScores(ctx context.Context, limit int) ([]domain.Standing, error)
}

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	Ledger   TopScorer
}

// Service keeps the global all-time leaderboard in a redis sorted set,
// mirrored from persisted scores. The SQL ledger stays the source of truth;
// the sorted set is rebuilt from it on a cold cache.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ledger TopScorer
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ledger: c.Ledger,
	}

	s.eb.Subscribe(domain.EventNameScorePersisted, func(ctx context.Context, e event.Event) error {
		return s.updateGlobal(ctx, e.(domain.EventScorePersisted))
	})

	return s
}

// Global returns the all-time top totals, best first.
func (s *Service) Global(ctx context.Context, limit int) ([]domain.Standing, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.globalKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: read global: %w", err)
	}

	if len(res) == 0 {
		return s.warmFromLedger(ctx, limit)
	}

	standings := make([]domain.Standing, 0, len(res))
	for _, z := range res {
		standings = append(standings, domain.Standing{
			Name:  z.Member.(string),
			Score: int64(z.Score),
		})
	}

	return standings, nil
}

// updateGlobal overwrites the user's total in the sorted set.
func (s *Service) updateGlobal(ctx context.Context, e domain.EventScorePersisted) error {
	if err := s.redis.ZAdd(ctx, s.globalKey(), redis.Z{
		Score:  float64(e.Total),
		Member: e.Username,
	}).Err(); err != nil {
		return fmt.Errorf("leaderboard: update global: %w", err)
	}

	return nil
}

// warmFromLedger rebuilds the sorted set from the SQL ledger after a cold
// start so subsequent reads are served from redis.
func (s *Service) warmFromLedger(ctx context.Context, limit int) ([]domain.Standing, error) {
	standings, err := s.ledger.TopScores(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: fallback to ledger: %w", err)
	}

	for _, st := range standings {
		if err := s.redis.ZAdd(ctx, s.globalKey(), redis.Z{
			Score:  float64(st.Score),
			Member: st.Name,
		}).Err(); err != nil {
			return nil, fmt.Errorf("leaderboard: warm global: %w", err)
		}
	}

	return standings, nil
}

func (s *Service) globalKey() string {
	return fmt.Sprintf("%s:leaderboard:global", s.prefix)
}
