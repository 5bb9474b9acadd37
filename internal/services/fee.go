package services

import "strings"

// FeeMode selects how the platform fee is derived from a stake.
type FeeMode string

const (
	FeeFlat    FeeMode = "flat"
	FeePercent FeeMode = "percent"
)

// FeePolicy computes the fee frozen on a thread at creation time.
type FeePolicy struct {
	Mode  FeeMode
	Value int64
}

// ParseFeeMode maps a config string to a FeeMode, defaulting to percent.
func ParseFeeMode(s string) FeeMode {
	if strings.EqualFold(strings.TrimSpace(s), string(FeeFlat)) {
		return FeeFlat
	}
	return FeePercent
}

// Fee returns the fee for stake, clamped to [0, stake].
func (p FeePolicy) Fee(stake int64) int64 {
	if stake <= 0 {
		return 0
	}
	var fee int64
	switch p.Mode {
	case FeeFlat:
		fee = p.Value
	default:
		fee = stake * p.Value / 100
	}
	return min(max(fee, 0), stake)
}
