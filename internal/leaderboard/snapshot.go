package leaderboard

import (
	"sort"

	"github.com/victornm/triviad/internal/domain"
)

// Snapshot returns the participants sorted by score descending. The sort is
// stable: equal scores keep registration order.
func Snapshot(ps []*domain.Participant) []domain.Standing {
	standings := make([]domain.Standing, 0, len(ps))
	for _, p := range ps {
		standings = append(standings, domain.Standing{
			UserID: p.UserID,
			Name:   p.Name,
			Score:  p.Score,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})

	return standings
}

// Top truncates standings to the first n rows.
func Top(standings []domain.Standing, n int) []domain.Standing {
	if n < len(standings) {
		return standings[:n]
	}
	return standings
}

// Rank returns a participant's 1-based position and score, even when they
// fall outside the displayed top.
func Rank(standings []domain.Standing, userID string) (int, int64, bool) {
	for i, st := range standings {
		if st.UserID == userID {
			return i + 1, st.Score, true
		}
	}
	return 0, 0, false
}
