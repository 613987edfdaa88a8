package triage

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute names carried alongside every routed message.
const (
	AttrSentiment     = "Sentiment"
	AttrNegativeScore = "NegativeScore"
)

// Attribute value types.
const (
	TypeString = "String"
	TypeNumber = "Number"
)

// scorePrecision is the number of decimals kept when formatting scores for attributes.
const scorePrecision = 6

// Attribute is one structured message attribute.
type Attribute struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Attributes are transport-level attributes, queryable without decoding the body.
type Attributes map[string]Attribute

// Destinations maps each tier to a queue identifier.
type Destinations struct {
	High   string
	Normal string
}

// For returns the destination configured for t.
func (d Destinations) For(t Tier) (string, bool) {
	switch t {
	case TierHigh:
		return d.High, true
	case TierNormal:
		return d.Normal, true
	}
	return "", false
}

// Route resolves the destination for rec's tier and builds its attributes.
func Route(rec *EnrichedRecord, dest Destinations) (string, Attributes, error) {
	destination, ok := dest.For(rec.Priority)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownPriorityTier, rec.Priority)
	}
	attrs := Attributes{
		AttrSentiment:     {Value: string(rec.Sentiment.Label), Type: TypeString},
		AttrNegativeScore: {Value: FormatScore(rec.Sentiment.Scores.Negative), Type: TypeNumber},
	}
	return destination, attrs, nil
}

// FormatScore renders a confidence with fixed precision and trailing zeros
// trimmed: 0.87 -> "0.87", 1 -> "1". Values below 5e-7 round to "0".
func FormatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', scorePrecision, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
