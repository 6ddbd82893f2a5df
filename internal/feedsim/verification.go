package feedsim

import (
	"errors"
	"fmt"

	"github.com/okian/hackcast/internal/domain/types"
)

// ErrVerification is returned when the board does not match the plan.
var ErrVerification = errors.New("verification failed")

// Verify checks that hot leads the board and that ranks are dense and
// ordered by effective score.
func Verify(entries []types.Entry, hot string) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty board", ErrVerification)
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrVerification, i, e.Rank)
		}
		if i > 0 && e.EffectiveScore > entries[i-1].EffectiveScore {
			return fmt.Errorf("%w: %s (%.2f) ranks below %s (%.2f)", ErrVerification,
				e.HackathonID, e.EffectiveScore, entries[i-1].HackathonID, entries[i-1].EffectiveScore)
		}
	}
	if entries[0].HackathonID != hot {
		return fmt.Errorf("%w: expected %s on top, got %s", ErrVerification, hot, entries[0].HackathonID)
	}
	return nil
}
