package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// testEpoch is an arbitrary fixed instant for synthetic-clock tests.
var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestNewRateWindowRejectsNonPositiveLimit verifies construction validation.
func TestNewRateWindowRejectsNonPositiveLimit(t *testing.T) {
	if _, err := NewRateWindow(0); err == nil {
		t.Error("NewRateWindow(0) should fail")
	}
	if _, err := NewRateWindow(-5); err == nil {
		t.Error("NewRateWindow(-5) should fail")
	}
}

// TestWindowStartsEmpty verifies a fresh window has full headroom.
func TestWindowStartsEmpty(t *testing.T) {
	w, err := NewRateWindow(100)
	if err != nil {
		t.Fatalf("NewRateWindow: %v", err)
	}
	if got := w.Headroom(testEpoch); got != 100 {
		t.Errorf("Headroom() = %d, want 100", got)
	}
	if got := w.Used(testEpoch); got != 0 {
		t.Errorf("Used() = %d, want 0", got)
	}
}

// TestRecordConsumesHeadroom verifies accounting after records.
func TestRecordConsumesHeadroom(t *testing.T) {
	w, _ := NewRateWindow(100)

	if err := w.Record(testEpoch, 30); err != nil {
		t.Fatalf("Record(30): %v", err)
	}
	if err := w.Record(testEpoch, 50); err != nil {
		t.Fatalf("Record(50): %v", err)
	}

	if got := w.Used(testEpoch); got != 80 {
		t.Errorf("Used() = %d, want 80", got)
	}
	if got := w.Headroom(testEpoch); got != 20 {
		t.Errorf("Headroom() = %d, want 20", got)
	}
}

// TestRecordRejectsOverCommit verifies a record past the remaining headroom
// fails without mutating the ledger.
func TestRecordRejectsOverCommit(t *testing.T) {
	w, _ := NewRateWindow(100)
	if err := w.Record(testEpoch, 90); err != nil {
		t.Fatalf("Record(90): %v", err)
	}

	if err := w.Record(testEpoch, 20); err == nil {
		t.Fatal("Record(20) with headroom 10 should fail")
	}
	if got := w.Used(testEpoch); got != 90 {
		t.Errorf("failed Record mutated the ledger: Used() = %d, want 90", got)
	}
}

// TestRecordRejectsUnitsAboveLimit verifies the capacity sentinel for units
// that could never fit an empty window.
func TestRecordRejectsUnitsAboveLimit(t *testing.T) {
	w, _ := NewRateWindow(100)

	err := w.Record(testEpoch, 101)
	if err == nil {
		t.Fatal("Record(101) on a 100-unit window should fail")
	}
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("error = %v, want ErrCapacityExceeded", err)
	}
}

// TestEventsExpireAfterWindowLength verifies the rolling eviction: units
// recorded at T are gone at T+60s but still counted at T+59s.
func TestEventsExpireAfterWindowLength(t *testing.T) {
	w, _ := NewRateWindow(10)

	for i := 0; i < 10; i++ {
		if err := w.Record(testEpoch, 1); err != nil {
			t.Fatalf("Record %d: %v", i+1, err)
		}
	}

	justBefore := testEpoch.Add(WindowLength - time.Second)
	if got := w.Headroom(justBefore); got != 0 {
		t.Errorf("Headroom at T+59s = %d, want 0", got)
	}

	after := testEpoch.Add(WindowLength)
	if got := w.Headroom(after); got != 10 {
		t.Errorf("Headroom at T+60s = %d, want 10", got)
	}
}

// TestPartialExpiry verifies events age out individually, not as a batch.
func TestPartialExpiry(t *testing.T) {
	w, _ := NewRateWindow(100)

	w.Record(testEpoch, 40)
	w.Record(testEpoch.Add(30*time.Second), 40)

	// At T+61s the first record has expired, the second has not.
	at := testEpoch.Add(61 * time.Second)
	if got := w.Used(at); got != 40 {
		t.Errorf("Used at T+61s = %d, want 40", got)
	}
	if got := w.Headroom(at); got != 60 {
		t.Errorf("Headroom at T+61s = %d, want 60", got)
	}
}

// TestTimeUntilHeadroomZeroWhenAdmissible verifies no wait is reported while
// capacity remains.
func TestTimeUntilHeadroomZeroWhenAdmissible(t *testing.T) {
	w, _ := NewRateWindow(100)
	w.Record(testEpoch, 50)

	if d := w.TimeUntilHeadroom(testEpoch, 50); d != 0 {
		t.Errorf("TimeUntilHeadroom = %v, want 0", d)
	}
}

// TestTimeUntilHeadroomTracksOldestEvent verifies the wait equals the expiry
// of the oldest event that frees enough units.
func TestTimeUntilHeadroomTracksOldestEvent(t *testing.T) {
	w, _ := NewRateWindow(100)

	w.Record(testEpoch, 60)
	w.Record(testEpoch.Add(10*time.Second), 40)

	// Need 30 units at T+20s: the 60-unit event expires at T+60s.
	at := testEpoch.Add(20 * time.Second)
	if d := w.TimeUntilHeadroom(at, 30); d != 40*time.Second {
		t.Errorf("TimeUntilHeadroom = %v, want 40s", d)
	}

	// Need 70 units: both events must expire; the second does at T+70s.
	if d := w.TimeUntilHeadroom(at, 70); d != 50*time.Second {
		t.Errorf("TimeUntilHeadroom = %v, want 50s", d)
	}
}

// TestTimeUntilHeadroomForImpossibleUnits verifies units above the limit
// report a full window rather than zero or negative.
func TestTimeUntilHeadroomForImpossibleUnits(t *testing.T) {
	w, _ := NewRateWindow(100)
	if d := w.TimeUntilHeadroom(testEpoch, 101); d != WindowLength {
		t.Errorf("TimeUntilHeadroom(101) = %v, want %v", d, WindowLength)
	}
}
