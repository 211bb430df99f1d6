// Package lifecycle holds the pure probation-evaluation logic. Nothing here
// touches storage; the engine feeds it volunteer snapshots and a clock.
package lifecycle

import (
	"time"

	"crewline/internal/domain"
)

// Policy is the tracking policy the evaluation runs under.
type Policy struct {
	CommitmentTarget int
	WindowDays       int
}

// DefaultPolicy matches the organization's standing rule: three commitments
// inside a 90-day window.
var DefaultPolicy = Policy{CommitmentTarget: 3, WindowDays: 90}

// Evaluation is the outcome of a probation check.
type Evaluation struct {
	Eligible          bool `json:"eligible"`
	DaysRemaining     int  `json:"days_remaining"`
	CommitmentsNeeded int  `json:"commitments_needed"`
}

const dateLayout = "2006-01-02"

// WindowEnd resolves the volunteer's tracking window end: the explicit
// period end if set, otherwise period start plus the policy window.
func WindowEnd(v domain.Volunteer, p Policy) (time.Time, error) {
	if v.PeriodEnd != nil && *v.PeriodEnd != "" {
		end, err := parseBoundary(*v.PeriodEnd)
		if err != nil {
			return time.Time{}, err
		}
		return end, nil
	}
	start, err := parseBoundary(v.PeriodStart)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, p.WindowDays), nil
}

// Evaluate is a pure function of the volunteer snapshot and now. Eligible
// means the commitment target is met and the window has not closed.
func Evaluate(v domain.Volunteer, now time.Time, p Policy) (Evaluation, error) {
	if p.CommitmentTarget <= 0 {
		p.CommitmentTarget = DefaultPolicy.CommitmentTarget
	}
	if p.WindowDays <= 0 {
		p.WindowDays = DefaultPolicy.WindowDays
	}
	end, err := WindowEnd(v, p)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{
		Eligible:          v.Commitments >= p.CommitmentTarget && !now.After(end),
		DaysRemaining:     daysUntil(now, end),
		CommitmentsNeeded: maxInt(0, p.CommitmentTarget-v.Commitments),
	}
	return ev, nil
}

// daysUntil counts remaining whole days, rounding partial days up, floored at zero.
func daysUntil(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// parseBoundary accepts both date-only and RFC3339 period boundaries.
func parseBoundary(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
