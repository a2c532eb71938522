package application

import (
	"testing"
	"time"
)

func TestParseDailyAt(t *testing.T) {
	cases := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"", 0, 5, false},
		{"01:30", 1, 30, false},
		{" 23:59 ", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
	}
	for _, tc := range cases {
		hour, minute, err := parseDailyAt(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if hour != tc.hour || minute != tc.minute {
			t.Fatalf("%q: got %02d:%02d", tc.in, hour, minute)
		}
	}
}

func TestSweeperUntilNext(t *testing.T) {
	s := &OverdueSweeper{hour: 1, minute: 0}
	before := time.Date(2026, time.March, 10, 0, 30, 0, 0, time.UTC)
	if got := s.untilNext(before); got != 30*time.Minute {
		t.Fatalf("before run time: got %s", got)
	}
	at := time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC)
	if got := s.untilNext(at); got != 24*time.Hour {
		t.Fatalf("at run time: got %s", got)
	}
	after := time.Date(2026, time.March, 10, 13, 0, 0, 0, time.UTC)
	if got := s.untilNext(after); got != 12*time.Hour {
		t.Fatalf("after run time: got %s", got)
	}
}
