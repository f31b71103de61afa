package stats

import (
	"math"
	"testing"
	"time"

	"github.com/haventree/shepherd/internal/models"
)

func mkSession(leaderID string, category models.HelpCategory, status models.SessionStatus, started time.Time, minutes int, rating *int, followUp bool) models.SessionRecord {
	return models.SessionRecord{
		LeaderID:        leaderID,
		Category:        category,
		Status:          status,
		StartedAt:       started,
		EndedAt:         started.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Rating:          rating,
		NeedsFollowUp:   followUp,
	}
}

func intp(v int) *int { return &v }

func TestComputeStatsEmpty(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	got := ComputeStats("leader_1", nil, Window{End: end})

	if got.TotalSessions != 0 || got.TotalDurationMin != 0 {
		t.Errorf("empty set should zero the counts: %+v", got)
	}
	if got.AverageRating != nil {
		t.Error("no rated sessions should report a nil average, not zero")
	}
	if got.ResponseRate != 0 || got.FollowUpRate != 0 {
		t.Errorf("rates must be zero with no sessions, got %v / %v", got.ResponseRate, got.FollowUpRate)
	}
	if len(got.MonthlyActivity) != MonthlyWindowMonths {
		t.Fatalf("monthly buckets are emitted even when empty, got %d", len(got.MonthlyActivity))
	}
	if got.MonthlyActivity[0].Month != "2025-01" || got.MonthlyActivity[5].Month != "2025-06" {
		t.Errorf("buckets should trail the window end oldest first: %+v", got.MonthlyActivity)
	}
}

func TestComputeStatsFiltersByLeaderAndWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	sessions := []models.SessionRecord{
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, start.AddDate(0, 1, 0), 30, nil, false),
		mkSession("leader_2", models.CategoryGrief, models.SessionCompleted, start.AddDate(0, 1, 0), 30, nil, false),
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, start.AddDate(0, -2, 0), 30, nil, false),
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, end.AddDate(0, 1, 0), 30, nil, false),
	}

	got := ComputeStats("leader_1", sessions, Window{Start: start, End: end})
	if got.TotalSessions != 1 {
		t.Errorf("only the in-window own session counts, got %d", got.TotalSessions)
	}
}

func TestComputeStatsAggregates(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	may := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	sessions := []models.SessionRecord{
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, may, 30, intp(5), true),
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, may, 60, intp(4), false),
		mkSession("leader_1", models.CategoryMarriage, models.SessionActive, june, 15, nil, false),
		mkSession("leader_1", models.CategoryFinancial, models.SessionAbandoned, june, 0, nil, false),
	}

	got := ComputeStats("leader_1", sessions, Window{End: end})

	if got.TotalSessions != 4 {
		t.Fatalf("expected 4 sessions, got %d", got.TotalSessions)
	}
	if got.TotalDurationMin != 105 {
		t.Errorf("expected 105 total minutes, got %d", got.TotalDurationMin)
	}
	if got.SessionsByStatus[models.SessionCompleted] != 2 || got.SessionsByStatus[models.SessionActive] != 1 || got.SessionsByStatus[models.SessionAbandoned] != 1 {
		t.Errorf("status counts wrong: %+v", got.SessionsByStatus)
	}

	if got.RatedSessions != 2 || got.AverageRating == nil || math.Abs(*got.AverageRating-4.5) > 1e-9 {
		t.Errorf("expected average 4.5 over 2 rated sessions, got %+v", got.AverageRating)
	}

	if got.CategoryPercent[models.CategoryGrief] != 50 {
		t.Errorf("expected grief at 50%%, got %d", got.CategoryPercent[models.CategoryGrief])
	}
	if got.CategoryPercent[models.CategoryMarriage] != 25 {
		t.Errorf("expected marriage at 25%%, got %d", got.CategoryPercent[models.CategoryMarriage])
	}

	// (completed + active) / total
	if math.Abs(got.ResponseRate-0.75) > 1e-9 {
		t.Errorf("expected response rate 0.75, got %v", got.ResponseRate)
	}
	// followUps / completed
	if math.Abs(got.FollowUpRate-0.5) > 1e-9 {
		t.Errorf("expected follow-up rate 0.5, got %v", got.FollowUpRate)
	}

	byMonth := make(map[string]int)
	for _, b := range got.MonthlyActivity {
		byMonth[b.Month] = b.Sessions
	}
	if byMonth["2025-05"] != 2 || byMonth["2025-06"] != 2 {
		t.Errorf("monthly buckets wrong: %+v", got.MonthlyActivity)
	}
	if byMonth["2025-04"] != 0 {
		t.Errorf("empty month should appear with zero, got %d", byMonth["2025-04"])
	}
}

func TestMonthlyBucketsMonthEndAnchor(t *testing.T) {
	// A month-end window anchor must still produce six consecutive months.
	end := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)
	february := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	sessions := []models.SessionRecord{
		mkSession("leader_1", models.CategoryGrief, models.SessionCompleted, february, 30, nil, false),
	}

	got := ComputeStats("leader_1", sessions, Window{End: end})
	want := []string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"}
	if len(got.MonthlyActivity) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got.MonthlyActivity))
	}
	for i, b := range got.MonthlyActivity {
		if b.Month != want[i] {
			t.Errorf("bucket %d = %s, want %s", i, b.Month, want[i])
		}
	}
	if got.MonthlyActivity[4].Sessions != 1 {
		t.Errorf("February session should land in its bucket: %+v", got.MonthlyActivity)
	}
}

func TestFollowUpRateGuardedWhenNothingCompleted(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	sessions := []models.SessionRecord{
		mkSession("leader_1", models.CategoryGrief, models.SessionAbandoned, june, 5, nil, true),
	}

	got := ComputeStats("leader_1", sessions, Window{End: end})
	if got.FollowUpRate != 0 {
		t.Errorf("no completed sessions, follow-up rate must stay zero, got %v", got.FollowUpRate)
	}
	if got.ResponseRate != 0 {
		t.Errorf("abandoned-only history should give zero response rate, got %v", got.ResponseRate)
	}
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	w := Window{Start: start, End: end}
	if !w.Contains(start) || !w.Contains(end) {
		t.Error("window bounds are inclusive")
	}
	if w.Contains(start.Add(-time.Second)) || w.Contains(end.Add(time.Second)) {
		t.Error("outside the bounds should not be contained")
	}

	open := Window{}
	if !open.Contains(start.AddDate(-50, 0, 0)) {
		t.Error("a zero window is unbounded")
	}
}
