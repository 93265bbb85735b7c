// internal/lobby/window.go
package lobby

import (
	"math"
	"sort"
	"time"
)

// WindowConfig carries the rating-window tuning constants. All of it is
// operator configuration (see internal/config); nothing in here is an
// algorithmic invariant.
type WindowConfig struct {
	BaseRange         float64
	RangeStep         float64
	ExpandInterval    time.Duration
	MaxSteps          int
	LastSeatGrace     time.Duration
	AbsoluteMinRating float64
	MinGames          int
	Granularity       float64
	PercentileCut     float64
	SpreadDivisor     float64
}

// Rating is one member's ladder snapshot as returned by the rating source.
type Rating struct {
	Value float64
	Games int
}

// IneligibleReason classifies why a member may not join a rated lobby.
type IneligibleReason int

const (
	ReasonNone IneligibleReason = iota
	// ReasonNoRating: the member has no ladder entry (or the lookup was
	// ambiguous and the source reported not-found).
	ReasonNoRating
	// ReasonInsufficientGames: rated but below the games-played threshold.
	ReasonInsufficientGames
	// ReasonBelowFloor: rating is under the lobby's effective floor.
	ReasonBelowFloor
	// ReasonNoFloor: the lobby itself has no usable floor (no host rating
	// on file). Eligibility fails closed.
	ReasonNoFloor
	// ReasonUnavailable: the member already holds a seat in some lobby, so
	// seating them here would break the one-lobby-per-member invariant.
	ReasonUnavailable
)

func (r IneligibleReason) String() string {
	switch r {
	case ReasonNone:
		return "eligible"
	case ReasonNoRating:
		return "no rating yet"
	case ReasonInsufficientGames:
		return "insufficient games"
	case ReasonBelowFloor:
		return "rating below floor"
	case ReasonNoFloor:
		return "lobby has no rating floor"
	case ReasonUnavailable:
		return "already in a lobby"
	}
	return "ineligible"
}

// Eligibility is the outcome of a floor check for one member.
type Eligibility struct {
	OK     bool
	Reason IneligibleReason
	// Floor is the effective floor the member was checked against, when one
	// existed.
	Floor float64
	// OpensIn is how long until step expansion alone would admit this
	// rating. Zero when OK, when unknown, or when no amount of expansion
	// would ever admit it.
	OpensIn time.Duration
	// HostCanOpen reports that the relaxed last-seat floor would admit the
	// member right now if the host opened the last seat.
	HostCanOpen bool
}

// SizeWindow computes a per-lobby (base, step) from the host's rating and a
// percentile cut of the league's rating distribution. league must already
// be filtered to players meeting the games threshold. With fewer than 10
// qualifying ratings the static defaults are returned; lobby creation never
// fails on this step.
func SizeWindow(hostRating float64, league []float64, cfg WindowConfig) (base, step float64) {
	base = cfg.BaseRange
	step = cfg.RangeStep
	if len(league) < 10 {
		return base, step
	}

	sorted := make([]float64, len(league))
	copy(sorted, league)
	sort.Float64s(sorted)
	leagueFloor := sorted[int(float64(len(sorted)-1)*cfg.PercentileCut)]

	// A host far above the league floor gets a proportionally wider window,
	// otherwise a tight base window would never find anyone.
	if cfg.SpreadDivisor > 0 {
		if spread := hostRating - leagueFloor; spread/cfg.SpreadDivisor > base {
			base = spread / cfg.SpreadDivisor
		}
	}
	base = roundUpTo(base, cfg.Granularity)
	if cfg.BaseRange > 0 {
		step = roundUpTo(cfg.RangeStep*base/cfg.BaseRange, cfg.Granularity)
	}
	if step < cfg.RangeStep {
		step = cfg.RangeStep
	}
	return base, step
}

// windowParams resolves the per-lobby overrides against the configured
// defaults.
func windowParams(l *Lobby, cfg WindowConfig) (base, step float64) {
	base, step = cfg.BaseRange, cfg.RangeStep
	if l.WindowBase > 0 {
		base = l.WindowBase
	}
	if l.WindowStep > 0 {
		step = l.WindowStep
	}
	return base, step
}

// DownwardRange returns how far below the host's rating the window reaches
// at time now. Monotonic non-decreasing in elapsed time, clamped at
// base + (MaxSteps-1)*step. Only meaningful for rated lobbies with a host
// rating; ok is false otherwise.
func DownwardRange(l *Lobby, now time.Time, cfg WindowConfig) (rng float64, ok bool) {
	if !l.RatingMode || l.HostRating <= 0 {
		return 0, false
	}
	base, step := windowParams(l, cfg)
	steps := 0
	if cfg.ExpandInterval > 0 {
		steps = int(now.Sub(l.CreatedAt) / cfg.ExpandInterval)
	}
	if steps < 0 {
		steps = 0
	}
	if max := cfg.MaxSteps - 1; steps > max {
		steps = max
	}
	return base + float64(steps)*step, true
}

// BaseFloor is host rating minus the current downward range.
func BaseFloor(l *Lobby, now time.Time, cfg WindowConfig) (float64, bool) {
	rng, ok := DownwardRange(l, now, cfg)
	if !ok {
		return 0, false
	}
	return l.HostRating - rng, true
}

// LastSeatOpen reports whether the final seat is in the relaxed state:
// either the host opened it explicitly, or the lobby has sat one seat from
// full for longer than the grace period.
func LastSeatOpen(l *Lobby, now time.Time, cfg WindowConfig) bool {
	if l.LastSeatRelaxed {
		return true
	}
	if l.AlmostFullAt.IsZero() || cfg.LastSeatGrace <= 0 {
		return false
	}
	return now.Sub(l.AlmostFullAt) > cfg.LastSeatGrace
}

// relaxedFloor is the last-seat floor: the lower of the base floor and the
// configured absolute minimum. Relaxation only ever lowers the bar, and the
// absolute minimum keeps it from dropping without bound.
func relaxedFloor(baseFloor float64, cfg WindowConfig) (float64, bool) {
	if cfg.AbsoluteMinRating <= 0 {
		return 0, false
	}
	return math.Min(baseFloor, cfg.AbsoluteMinRating), true
}

// EffectiveFloor is the floor a joiner must meet right now: the base floor,
// or the relaxed floor while the last seat is open. ok is false when the
// lobby has no usable floor at all.
func EffectiveFloor(l *Lobby, now time.Time, cfg WindowConfig) (float64, bool) {
	base, ok := BaseFloor(l, now, cfg)
	if !ok {
		return 0, false
	}
	if LastSeatOpen(l, now, cfg) {
		if relaxed, ok := relaxedFloor(base, cfg); ok {
			return relaxed, true
		}
	}
	return base, true
}

// CheckEligibility decides whether a member with the given ladder snapshot
// may join the rated lobby at time now. Any missing datum fails closed.
func CheckEligibility(l *Lobby, now time.Time, cfg WindowConfig, r Rating, found bool) Eligibility {
	if !l.RatingMode {
		return Eligibility{OK: true}
	}
	if !found {
		return Eligibility{Reason: ReasonNoRating}
	}
	if r.Games < cfg.MinGames {
		return Eligibility{Reason: ReasonInsufficientGames}
	}
	floor, ok := EffectiveFloor(l, now, cfg)
	if !ok {
		return Eligibility{Reason: ReasonNoFloor}
	}
	if r.Value >= floor {
		return Eligibility{OK: true, Floor: floor}
	}

	el := Eligibility{Reason: ReasonBelowFloor, Floor: floor}
	el.OpensIn = floorOpensIn(l, now, cfg, r.Value)
	if base, ok := BaseFloor(l, now, cfg); ok {
		if relaxed, ok := relaxedFloor(base, cfg); ok && r.Value >= relaxed {
			el.HostCanOpen = true
		}
	}
	return el
}

// floorOpensIn estimates how long until step expansion alone lowers the
// base floor to admit the given rating. Returns 0 if expansion can never
// reach it.
func floorOpensIn(l *Lobby, now time.Time, cfg WindowConfig, rating float64) time.Duration {
	if cfg.ExpandInterval <= 0 || l.HostRating <= 0 {
		return 0
	}
	base, step := windowParams(l, cfg)
	needed := l.HostRating - rating
	for k := 0; k < cfg.MaxSteps; k++ {
		if base+float64(k)*step >= needed {
			opensAt := l.CreatedAt.Add(time.Duration(k) * cfg.ExpandInterval)
			if d := opensAt.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

func roundUpTo(v, granularity float64) float64 {
	if granularity <= 0 {
		return v
	}
	return math.Ceil(v/granularity) * granularity
}
