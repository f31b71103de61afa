// Package stats derives per-leader performance metrics from session records.
//
// Everything here is pure and deterministic: stats are recomputed on demand
// from the session set filtered to a time window, never maintained
// incrementally, and never mutate anything.
package stats

import (
	"time"

	"github.com/haventree/shepherd/internal/models"
)

// MonthlyWindowMonths is the fixed trailing window for monthly activity
// buckets.
const MonthlyWindowMonths = 6

// Window bounds the session set a computation considers. A zero Start or End
// leaves that side unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the session's start falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// ComputeStats derives a leader's stats from their session records filtered
// to the window. An empty session set yields zeroed counts and a nil average
// rating ("none"), never a division error.
func ComputeStats(leaderID string, sessions []models.SessionRecord, window Window) models.LeaderStats {
	out := models.LeaderStats{
		LeaderID:         leaderID,
		SessionsByStatus: make(map[models.SessionStatus]int),
		CategoryPercent:  make(map[models.HelpCategory]int),
		WindowStart:      window.Start,
		WindowEnd:        window.End,
	}

	var inWindow []models.SessionRecord
	for _, s := range sessions {
		if s.LeaderID != leaderID || !window.Contains(s.StartedAt) {
			continue
		}
		inWindow = append(inWindow, s)
	}

	out.TotalSessions = len(inWindow)
	out.MonthlyActivity = monthlyBuckets(inWindow, windowEndOrNow(window))
	if len(inWindow) == 0 {
		return out
	}

	ratingSum := 0
	followUps := 0
	categoryCounts := make(map[models.HelpCategory]int)
	for _, s := range inWindow {
		out.SessionsByStatus[s.Status]++
		out.TotalDurationMin += s.DurationMinutes
		categoryCounts[s.Category]++
		if s.Rating != nil {
			ratingSum += *s.Rating
			out.RatedSessions++
		}
		if s.NeedsFollowUp {
			followUps++
		}
	}

	// Mean rating over rated sessions only; zero rated sessions report none.
	if out.RatedSessions > 0 {
		avg := float64(ratingSum) / float64(out.RatedSessions)
		out.AverageRating = &avg
	}

	// Integer percentages; rounding may leave a ±1% residual, which is
	// accepted rather than corrected.
	for category, count := range categoryCounts {
		out.CategoryPercent[category] = int(float64(count)/float64(out.TotalSessions)*100 + 0.5)
	}

	completed := out.SessionsByStatus[models.SessionCompleted]
	active := out.SessionsByStatus[models.SessionActive]
	out.ResponseRate = float64(completed+active) / float64(out.TotalSessions)
	if completed > 0 {
		out.FollowUpRate = float64(followUps) / float64(completed)
	}

	return out
}

// windowEndOrNow anchors the monthly buckets at the window end, or now when
// the window is open-ended.
func windowEndOrNow(window Window) time.Time {
	if !window.End.IsZero() {
		return window.End
	}
	return time.Now()
}

// monthlyBuckets counts sessions per month over the fixed trailing window,
// oldest bucket first. Empty months appear with a zero count. The anchor is
// truncated to the first of the month; stepping back from a month-end day
// would skip short months.
func monthlyBuckets(sessions []models.SessionRecord, end time.Time) []models.MonthlyActivity {
	buckets := make([]models.MonthlyActivity, 0, MonthlyWindowMonths)
	counts := make(map[string]int)
	for _, s := range sessions {
		counts[s.StartedAt.Format("2006-01")]++
	}
	anchor := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	for i := MonthlyWindowMonths - 1; i >= 0; i-- {
		month := anchor.AddDate(0, -i, 0).Format("2006-01")
		buckets = append(buckets, models.MonthlyActivity{
			Month:    month,
			Sessions: counts[month],
		})
	}
	return buckets
}
