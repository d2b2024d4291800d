// Package quality plans which resolutions to attempt for a fetch.
package quality

import (
	"strconv"
	"strings"

	"thirdcoast.systems/clipfit/internal/mediaerr"
	"thirdcoast.systems/clipfit/internal/platform"
)

type Tier string

const (
	Tier360  Tier = "360"
	Tier480  Tier = "480"
	Tier720  Tier = "720"
	Tier1080 Tier = "1080"

	Best     Tier = "best"
	Original Tier = "original"
	Auto     Tier = "auto"

	// Worst only appears in ladders for limited platforms.
	Worst Tier = "worst"
)

// numeric tiers, highest first
var descending = []Tier{Tier1080, Tier720, Tier480, Tier360}

// ParseTier accepts "360".."1080" (optionally suffixed with "p") and the sentinels
// best, original and auto.
func ParseTier(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch Tier(v) {
	case Best, Original, Auto:
		return Tier(v), nil
	}
	v = strings.TrimSuffix(v, "p")
	switch t := Tier(v); t {
	case Tier360, Tier480, Tier720, Tier1080:
		return t, nil
	}
	return "", mediaerr.Invalid("quality.parse", "unknown quality %q", s)
}

// Sentinel reports best, original and auto.
func (t Tier) Sentinel() bool {
	return t == Best || t == Original || t == Auto
}

// Height returns the numeric height, or 0 for sentinels and worst.
func (t Tier) Height() int {
	h, err := strconv.Atoi(string(t))
	if err != nil {
		return 0
	}
	return h
}

// rank orders tiers for capping; sentinels compare as 720.
func (t Tier) rank() int {
	if t.Sentinel() {
		return 720
	}
	return t.Height()
}

func (t Tier) String() string { return string(t) }

// durationCeiling returns the highest tier allowed for a video of the given length,
// or "" when no cap applies. Longer videos get strictly tighter ceilings.
func durationCeiling(durationSeconds float64) Tier {
	switch {
	case durationSeconds > 1800:
		return Tier360
	case durationSeconds > 1200:
		return Tier480
	case durationSeconds > 600:
		return Tier720
	default:
		return ""
	}
}

// CapByDuration lowers t to the ceiling for durationSeconds. Applying it twice is the same
// as applying it once. A duration of 0 (unknown) never caps.
func CapByDuration(durationSeconds float64, t Tier) Tier {
	ceiling := durationCeiling(durationSeconds)
	if ceiling == "" {
		return t
	}
	if t.rank() > ceiling.Height() {
		return ceiling
	}
	return t
}

// Ladder is the ordered list of tiers to attempt, most preferred first.
type Ladder []Tier

func (l Ladder) Strings() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = string(t)
	}
	return out
}

// BuildLadder expands t into the attempts for p.
func BuildLadder(p platform.Tag, t Tier) Ladder {
	if p.Limited() {
		if t == Tier360 || t == Worst {
			return Ladder{Worst}
		}
		return Ladder{Best, Worst}
	}

	if t.Sentinel() {
		t = Tier720
	}
	if t == Worst {
		t = Tier360
	}
	for i, step := range descending {
		if step == t {
			return append(Ladder(nil), descending[i:]...)
		}
	}
	// unreachable for parsed tiers
	return Ladder{Tier360}
}
