package orchestrator

import (
	"testing"
	"time"
)

func TestIsTradeTimeDuringMorningSession(t *testing.T) {
	loc := shanghaiLocation
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, loc) // a Wednesday
	if !IsTradeTime(now) {
		t.Fatal("expected 10:00 on a weekday to be trade time")
	}
}

func TestIsTradeTimeDuringLunchBreak(t *testing.T) {
	loc := shanghaiLocation
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, loc)
	if IsTradeTime(now) {
		t.Fatal("expected 12:00 lunch break to not be trade time")
	}
}

func TestIsTradeTimeOnWeekend(t *testing.T) {
	loc := shanghaiLocation
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, loc) // a Saturday
	if IsTradeTime(now) {
		t.Fatal("expected Saturday to not be trade time")
	}
}

func TestIsTradeTimeAfterClose(t *testing.T) {
	loc := shanghaiLocation
	now := time.Date(2026, 7, 29, 16, 0, 0, 0, loc)
	if IsTradeTime(now) {
		t.Fatal("expected 16:00 to not be trade time")
	}
}
