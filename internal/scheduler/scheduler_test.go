package scheduler

import (
	"testing"
)

func TestAddJobValidatesExpression(t *testing.T) {
	s := New()
	defer s.Stop()

	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("five-field expression should be accepted: %v", err)
	}
	if err := s.AddJob("*/5 * * * *", func() {}); err != nil {
		t.Errorf("step expression should be accepted: %v", err)
	}
	if err := s.AddJob("not a cron line", func() {}); err == nil {
		t.Error("garbage expression should be rejected")
	}
	if err := s.AddJob("* * * * * *", func() {}); err == nil {
		t.Error("six-field expression should be rejected")
	}
}

func TestStopIsSafe(t *testing.T) {
	s := New()
	s.Stop()
	s.Stop()
}
