package spec_test

import (
	"testing"
	"time"

	"github.com/matrix-org/stateres/spec"
)

func TestTimestampRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000123).UTC()
	ts := spec.AsTimestamp(now)
	if ts != 1700000000123 {
		t.Fatalf("AsTimestamp - Expected: 1700000000123 Actual: %d", ts)
	}
	if !ts.Time().Equal(now) {
		t.Fatalf("Time - Expected: %s Actual: %s", now, ts.Time())
	}
}
