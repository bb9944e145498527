// Package leveling holds the XP curves for user and muscle-category levels.
// Everything here is pure and deterministic: the same inputs always produce the
// same level-ups and rewards.
package leveling

import (
	"math"
	"sync"
)

// Curve defines xpDelta(L) = floor(raw(L)·Cap / (raw(L)+K)), where
// raw(L) = Base·Growth^(L-1)·(1 - Boost·e^(-Decay·(L-1))).
type Curve struct {
	Name   string
	Base   float64
	Growth float64
	Boost  float64
	Decay  float64
	Cap    float64
	K      float64
	Reward func(level int) int64

	mu     sync.Mutex
	totals []int64 // totals[i] = TotalXPForLevel(i); totals[0] = 0
}

// UserCurve drives the overall account level.
var UserCurve = &Curve{
	Name:   "user",
	Base:   100,
	Growth: 1.12,
	Boost:  0.5,
	Decay:  0.35,
	Cap:    25000,
	K:      20000,
	Reward: func(level int) int64 { return 10 + 5*int64(level) },
}

// CategoryCurve drives each muscle-category level.
var CategoryCurve = &Curve{
	Name:   "category",
	Base:   50,
	Growth: 1.1,
	Boost:  0.6,
	Decay:  0.5,
	Cap:    10000,
	K:      8000,
	Reward: func(level int) int64 { return 2 * int64(level) },
}

func (c *Curve) raw(level int) float64 {
	n := float64(level - 1)
	return c.Base * math.Pow(c.Growth, n) * (1 - c.Boost*math.Exp(-c.Decay*n))
}

// XPDelta is the XP needed to climb from level to level+1. It never exceeds Cap.
func (c *Curve) XPDelta(level int) int64 {
	if level < 1 {
		return 0
	}
	r := c.raw(level)
	if r <= 0 {
		return 0
	}
	// Cap/(1+K/r) equals Cap·r/(r+K) but stays finite once r overflows to +Inf.
	return int64(math.Floor(c.Cap / (1 + c.K/r)))
}

// TotalXPForLevel is the sum of XPDelta(L) for L in [1, n].
func (c *Curve) TotalXPForLevel(n int) int64 {
	if n < 1 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.totals) == 0 {
		c.totals = append(c.totals, 0)
	}
	for l := len(c.totals); l <= n; l++ {
		c.totals = append(c.totals, c.totals[l-1]+c.XPDelta(l))
	}
	return c.totals[n]
}

// Threshold is the total XP at which level is reached. Level 1 is where everyone starts.
func (c *Curve) Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	return c.TotalXPForLevel(level)
}

// RewardFor returns the coins granted on reaching level.
func (c *Curve) RewardFor(level int) int64 {
	if c.Reward == nil {
		return 0
	}
	return c.Reward(level)
}

// LevelFor returns the level a total XP corresponds to and the XP earned past
// that level's threshold.
func (c *Curve) LevelFor(totalXP int64) (level int, leftover int64) {
	level = 1
	for totalXP >= c.TotalXPForLevel(level+1) {
		level++
	}
	return level, totalXP - c.Threshold(level)
}

// LevelUp is one level crossed by an Advance.
type LevelUp struct {
	Level  int   `json:"level"`
	Reward int64 `json:"reward"`
}

// Advancement is the result of adding XP at a known level.
type Advancement struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	XP       int64     `json:"xp"`
	LevelUps []LevelUp `json:"levelUps"`
}

// Coins is the sum of rewards over all level-ups.
func (a Advancement) Coins() int64 {
	var n int64
	for _, up := range a.LevelUps {
		n += up.Reward
	}
	return n
}

// Advance adds delta to oldXP starting from level and reports every level crossed.
// Negative deltas are treated as zero; levels never go down.
func (c *Curve) Advance(level int, oldXP, delta int64) Advancement {
	if level < 1 {
		level = 1
	}
	if delta < 0 {
		delta = 0
	}
	total := oldXP + delta
	adv := Advancement{From: level, XP: total, LevelUps: []LevelUp{}}
	for total >= c.TotalXPForLevel(level+1) {
		level++
		adv.LevelUps = append(adv.LevelUps, LevelUp{Level: level, Reward: c.RewardFor(level)})
	}
	adv.To = level
	return adv
}
