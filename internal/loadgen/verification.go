package loadgen

import (
	"fmt"

	"github.com/okian/reel/internal/domain/types"
)

// verify checks that rec has one item per trending movie, in trending order,
// with every score strictly inside (0, 100).
func verify(rec *types.Recommendation, trending []types.Movie) error {
	if len(rec.Items) != len(trending) {
		return fmt.Errorf("%w: %d items for %d trending movies", ErrVerification, len(rec.Items), len(trending))
	}
	for i, item := range rec.Items {
		if item.MovieID != trending[i].MovieID {
			return fmt.Errorf("%w: item %d is movie %d, want %d", ErrVerification, i, item.MovieID, trending[i].MovieID)
		}
		if !(item.NormalizedScore > 0 && item.NormalizedScore < 100) {
			return fmt.Errorf("%w: movie %d scored %v", ErrVerification, item.MovieID, item.NormalizedScore)
		}
	}
	return nil
}
