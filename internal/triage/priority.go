package triage

import (
	"fmt"
	"math"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

// DefaultThreshold is the negative confidence above which a message is HIGH priority.
const DefaultThreshold = 0.5

// ValidateThreshold checks that threshold lies in the open interval (0,1).
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("%w: %v (must be in (0,1))", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Classify assigns a tier from the negative confidence alone. The comparison is
// strict: a score equal to the threshold is NORMAL.
func Classify(score sentiment.Score, threshold float64) (Tier, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return "", err
	}
	if score.Scores.Negative > threshold {
		return TierHigh, nil
	}
	return TierNormal, nil
}
