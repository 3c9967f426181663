package transcoder

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// BitrateTier maps a minimum pixel count to a target video bitrate.
type BitrateTier struct {
	MinPixels     int `json:"minPixels"`
	BitsPerSecond int `json:"bitsPerSecond"`
}

// BitrateTable selects an encode bitrate from the source resolution.
type BitrateTable struct {
	Tiers   []BitrateTier `json:"tiers"`
	Default int           `json:"default"`
}

// DefaultBitrateTable trades size for quality by resolution class:
// 1080p and up 3.5 Mbps, 720p 2.5 Mbps, 480p 1.5 Mbps, anything smaller 1 Mbps.
func DefaultBitrateTable() BitrateTable {
	return BitrateTable{
		Tiers: []BitrateTier{
			{MinPixels: 1920 * 1080, BitsPerSecond: 3_500_000},
			{MinPixels: 1280 * 720, BitsPerSecond: 2_500_000},
			{MinPixels: 854 * 480, BitsPerSecond: 1_500_000},
		},
		Default: 1_000_000,
	}
}

// Select returns the bitrate for a width×height source.
func (t BitrateTable) Select(width, height int) int {
	pixels := width * height
	tiers := append([]BitrateTier(nil), t.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinPixels > tiers[j].MinPixels })

	for _, tier := range tiers {
		if pixels >= tier.MinPixels {
			return tier.BitsPerSecond
		}
	}
	return t.Default
}

// SizeTier applies Ratio to files strictly larger than Above bytes.
type SizeTier struct {
	Above int64   `json:"above"`
	Ratio float64 `json:"ratio"`
}

// SizeTable estimates the encoded size of a file for display purposes.
type SizeTable struct {
	Tiers        []SizeTier `json:"tiers"`
	DefaultRatio float64    `json:"defaultRatio"`
}

const mib = 1024 * 1024

// DefaultSizeTable holds the typical reduction ratios observed for WebM
// re-encodes: larger sources compress proportionally better.
func DefaultSizeTable() SizeTable {
	return SizeTable{
		Tiers: []SizeTier{
			{Above: 500 * mib, Ratio: 0.40},
			{Above: 100 * mib, Ratio: 0.45},
			{Above: 20 * mib, Ratio: 0.50},
		},
		DefaultRatio: 0.60,
	}
}

// Estimate returns the expected post-encode size of a file of size bytes.
func (t SizeTable) Estimate(size int64) int64 {
	if size <= 0 {
		return 0
	}

	tiers := append([]SizeTier(nil), t.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Above > tiers[j].Above })

	ratio := t.DefaultRatio
	for _, tier := range tiers {
		if size > tier.Above {
			ratio = tier.Ratio
			break
		}
	}
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}

	return int64(math.Round(float64(size) * ratio))
}

// EstimateWebMSize estimates the encoded size using the default table.
func EstimateWebMSize(size int64) int64 {
	return DefaultSizeTable().Estimate(size)
}

// ErrInvalidPolicy is returned by Validate and SetPolicy.
var ErrInvalidPolicy = errors.New("invalid transcode policy")

// Policy groups the tables an operator may tune at runtime.
type Policy struct {
	Bitrates BitrateTable `json:"bitrates"`
	Sizes    SizeTable    `json:"sizes"`
}

// Validate rejects tables that would select a non-positive bitrate or a
// ratio outside (0, 1].
func (p Policy) Validate() error {
	if p.Bitrates.Default <= 0 {
		return fmt.Errorf("%w: default bitrate must be positive, got %d", ErrInvalidPolicy, p.Bitrates.Default)
	}
	for _, tier := range p.Bitrates.Tiers {
		if tier.MinPixels <= 0 || tier.BitsPerSecond <= 0 {
			return fmt.Errorf("%w: bitrate tier %+v", ErrInvalidPolicy, tier)
		}
	}
	if p.Sizes.DefaultRatio <= 0 || p.Sizes.DefaultRatio > 1 {
		return fmt.Errorf("%w: default ratio must be in (0, 1], got %v", ErrInvalidPolicy, p.Sizes.DefaultRatio)
	}
	for _, tier := range p.Sizes.Tiers {
		if tier.Above < 0 || tier.Ratio <= 0 || tier.Ratio > 1 {
			return fmt.Errorf("%w: size tier %+v", ErrInvalidPolicy, tier)
		}
	}
	return nil
}
