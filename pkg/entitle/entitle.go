// Package entitle enforces plan limits on live match features.
package entitle

import (
	"fmt"
	"sync"
	"time"
)

// Plan is the purchased feature level.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Limits defines what a plan is allowed to do.
type Limits struct {
	LiveFeatures     bool // live polling and event feeds at all
	DailyLiveMatches int  // matches per day; 0 means unlimited
}

// DefaultLimits returns the limits for a plan.
func DefaultLimits(plan Plan) Limits {
	if plan == PlanPremium {
		return Limits{LiveFeatures: true, DailyLiveMatches: 0}
	}
	return Limits{LiveFeatures: true, DailyLiveMatches: 1}
}

// Gate tracks daily live-match consumption against plan limits. Counters
// reset lazily when a check crosses a day boundary.
type Gate struct {
	plan   Plan
	limits Limits

	mu        sync.Mutex
	usedToday int
	lastDay   int // day of year of the last consumption
}

// NewGate creates a gate for a plan using its default limits.
func NewGate(plan Plan) *Gate {
	return &Gate{
		plan:    plan,
		limits:  DefaultLimits(plan),
		lastDay: time.Now().YearDay(),
	}
}

// Plan returns the gate's plan.
func (g *Gate) Plan() Plan { return g.plan }

// CanUseLiveFeatures reports whether a new live match may start today.
func (g *Gate) CanUseLiveFeatures() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyIfNeeded()

	if !g.limits.LiveFeatures {
		return false
	}
	if g.limits.DailyLiveMatches == 0 {
		return true
	}
	return g.usedToday < g.limits.DailyLiveMatches
}

// ConsumeLiveMatch spends one daily live match. It fails when the day's
// allowance is used up.
func (g *Gate) ConsumeLiveMatch() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyIfNeeded()

	if !g.limits.LiveFeatures {
		return fmt.Errorf("plan %s has no live features", g.plan)
	}
	if g.limits.DailyLiveMatches > 0 && g.usedToday >= g.limits.DailyLiveMatches {
		return fmt.Errorf("daily live match limit reached: %d", g.limits.DailyLiveMatches)
	}
	g.usedToday++
	return nil
}

// Remaining returns how many live matches are left today. Unlimited plans
// return -1.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyIfNeeded()

	if g.limits.DailyLiveMatches == 0 {
		return -1
	}
	left := g.limits.DailyLiveMatches - g.usedToday
	if left < 0 {
		return 0
	}
	return left
}

// ResetDaily zeroes today's consumption. The daemon also calls this from a
// midnight cron so long-running processes do not depend on lazy resets.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usedToday = 0
	g.lastDay = time.Now().YearDay()
}

func (g *Gate) resetDailyIfNeeded() {
	if day := time.Now().YearDay(); day != g.lastDay {
		g.usedToday = 0
		g.lastDay = day
	}
}

// Status is a JSON-friendly summary of the gate state.
type Status struct {
	Plan             Plan `json:"plan"`
	LiveFeatures     bool `json:"live_features"`
	DailyLiveMatches int  `json:"daily_live_matches"` // 0 means unlimited
	UsedToday        int  `json:"used_today"`
	Remaining        int  `json:"remaining"` // -1 means unlimited
}

// Status returns the current gate state.
func (g *Gate) Status() Status {
	remaining := g.Remaining()

	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Plan:             g.plan,
		LiveFeatures:     g.limits.LiveFeatures,
		DailyLiveMatches: g.limits.DailyLiveMatches,
		UsedToday:        g.usedToday,
		Remaining:        remaining,
	}
}
