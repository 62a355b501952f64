package catalog

import (
	"strconv"
	"strings"
)

// Feature describes a capability granted by an offering. Value is kept as
// configured text; use ParseFeatureValue to interpret it once.
type Feature struct {
	Code     string
	Value    string
	Interval Interval
}

func NewFeature(code, value string, interval Interval) Feature {
	return Feature{Code: code, Value: value, Interval: interval}
}

// FeatureValueKind discriminates how a feature value should be read.
type FeatureValueKind int

const (
	// FeatureRaw is a value that is neither a positive word nor numeric.
	FeatureRaw FeatureValueKind = iota
	// FeatureFlag is a boolean-like value ("yes", "true", ...).
	FeatureFlag
	// FeatureQuota is a numeric, countable allowance.
	FeatureQuota
)

// FeatureValue is the resolved form of a feature's raw string value.
// Resolving once avoids repeated string-to-number coercion at call sites.
type FeatureValue struct {
	Kind  FeatureValueKind
	Flag  bool
	Quota float64
	Raw   string
}

// ParseFeatureValue interprets raw against the configured positive words.
// A positive word becomes an enabled flag; a numeric value becomes a quota;
// anything else stays raw with a zero quota.
func ParseFeatureValue(raw string, positiveWords []string) FeatureValue {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	for _, w := range positiveWords {
		if lowered == strings.ToLower(w) {
			return FeatureValue{Kind: FeatureFlag, Flag: true, Raw: raw}
		}
	}
	if q, err := strconv.ParseFloat(lowered, 64); err == nil {
		return FeatureValue{Kind: FeatureQuota, Quota: q, Raw: raw}
	}
	return FeatureValue{Kind: FeatureRaw, Raw: raw}
}
