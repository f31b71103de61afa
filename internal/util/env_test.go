package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{" true ", false, true},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("SHEPHERD_TEST_BOOL", c.value)
		if got := ParseBoolEnv("SHEPHERD_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	cases := []struct {
		value string
		def   time.Duration
		want  time.Duration
	}{
		{"30m", time.Hour, 30 * time.Minute},
		{"1h30m", time.Hour, 90 * time.Minute},
		{" 45s ", time.Hour, 45 * time.Second},
		{"", 10 * time.Minute, 10 * time.Minute},
		{"soon", 10 * time.Minute, 10 * time.Minute},
		{"30", 10 * time.Minute, 10 * time.Minute},
	}
	for _, c := range cases {
		t.Setenv("SHEPHERD_TEST_DURATION", c.value)
		if got := ParseDurationEnv("SHEPHERD_TEST_DURATION", c.def); got != c.want {
			t.Errorf("ParseDurationEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseFloatEnv(t *testing.T) {
	cases := []struct {
		value string
		def   float64
		want  float64
	}{
		{"0.75", 0.5, 0.75},
		{"2", 0.5, 2},
		{" 1.5 ", 0.5, 1.5},
		{"", 0.5, 0.5},
		{"high", 0.5, 0.5},
	}
	for _, c := range cases {
		t.Setenv("SHEPHERD_TEST_FLOAT", c.value)
		if got := ParseFloatEnv("SHEPHERD_TEST_FLOAT", c.def); got != c.want {
			t.Errorf("ParseFloatEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}
