// Package sentiment normalizes raw classifier output into a canonical Score.
package sentiment

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedOutput is returned when classifier output violates the classifier contract.
var ErrMalformedOutput = errors.New("malformed classifier output")

// SumTolerance is how far the four confidences may drift from 1.0 before the output is rejected.
const SumTolerance = 0.05

// Label is the dominant sentiment reported by the classifier.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
	Mixed    Label = "MIXED"
)

// Labels lists every recognized label in canonical order.
var Labels = [...]Label{Positive, Negative, Neutral, Mixed}

// ParseLabel matches s against the recognized labels, ignoring case and surrounding space.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	switch l {
	case Positive, Negative, Neutral, Mixed:
		return l, true
	}
	return "", false
}

// Output is the raw response of a sentiment classifier, before validation.
// Score keys are label names in any case (Comprehend uses "Negative", others "NEGATIVE").
type Output struct {
	Label  string             `json:"sentiment"`
	Scores map[string]float64 `json:"scores"`
}

// Scores holds one confidence per label. Field order is fixed so serialization is stable.
type Scores struct {
	Positive float64 `json:"Positive"`
	Negative float64 `json:"Negative"`
	Neutral  float64 `json:"Neutral"`
	Mixed    float64 `json:"Mixed"`
}

// Score is the canonical, validated classifier result.
type Score struct {
	Label  Label  `json:"sentiment"`
	Scores Scores `json:"scores"`
}

// Of returns the confidence recorded for l, or 0 for an unrecognized label.
func (s Score) Of(l Label) float64 {
	switch l {
	case Positive:
		return s.Scores.Positive
	case Negative:
		return s.Scores.Negative
	case Neutral:
		return s.Scores.Neutral
	case Mixed:
		return s.Scores.Mixed
	}
	return 0
}

// Extract validates out and converts it into a Score.
func Extract(out *Output) (Score, error) {
	if out == nil {
		return Score{}, fmt.Errorf("%w: no output", ErrMalformedOutput)
	}

	label, ok := ParseLabel(out.Label)
	if !ok {
		return Score{}, fmt.Errorf("%w: unrecognized label %q", ErrMalformedOutput, out.Label)
	}

	found := make(map[Label]float64, len(Labels))
	for k, v := range out.Scores {
		l, ok := ParseLabel(k)
		if !ok {
			continue
		}
		if prev, dup := found[l]; dup && prev != v {
			return Score{}, fmt.Errorf("%w: conflicting %s confidences", ErrMalformedOutput, l)
		}
		found[l] = v
	}

	var sum float64
	for _, l := range Labels {
		v, ok := found[l]
		if !ok {
			return Score{}, fmt.Errorf("%w: missing %s confidence", ErrMalformedOutput, l)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Score{}, fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrMalformedOutput, l, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > SumTolerance {
		return Score{}, fmt.Errorf("%w: confidences sum to %.4f", ErrMalformedOutput, sum)
	}

	return Score{
		Label: label,
		Scores: Scores{
			Positive: found[Positive],
			Negative: found[Negative],
			Neutral:  found[Neutral],
			Mixed:    found[Mixed],
		},
	}, nil
}
