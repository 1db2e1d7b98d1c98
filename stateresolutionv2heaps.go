package stateres

import (
	"sort"
	"strings"

	"github.com/matrix-org/stateres/spec"
)

// A powerSortKey orders the power events that are ready to be emitted by
// Kahn's algorithm. The effective power level and the timestamp are worked
// out before the event enters the ready set so that comparisons don't have
// to fetch anything.
type powerSortKey struct {
	node           int
	powerLevel     UserPowerLevel
	originServerTS spec.Timestamp
	eventID        string
}

// comparePowerSortKeys sorts by descending power level, then ascending
// origin_server_ts, then ascending event ID.
func comparePowerSortKeys(a, b powerSortKey) int {
	if c := b.powerLevel.Compare(a.powerLevel); c != 0 {
		return c
	}
	switch {
	case a.originServerTS < b.originServerTS:
		return -1
	case a.originServerTS > b.originServerTS:
		return 1
	}
	return strings.Compare(a.eventID, b.eventID)
}

// A mainlineSortKey orders the remaining events after the power events
// have been resolved.
type mainlineSortKey struct {
	position       int
	originServerTS spec.Timestamp
	eventID        string
}

type mainlineSortKeys []mainlineSortKey

func (s mainlineSortKeys) Len() int {
	return len(s)
}

// Less sorts by ascending mainline position, then ascending
// origin_server_ts, then ascending event ID. Position 0 is the oldest
// power levels event on the mainline.
func (s mainlineSortKeys) Less(i, j int) bool {
	if s[i].position != s[j].position {
		return s[i].position < s[j].position
	}
	if s[i].originServerTS != s[j].originServerTS {
		return s[i].originServerTS < s[j].originServerTS
	}
	return s[i].eventID < s[j].eventID
}

func (s mainlineSortKeys) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

var _ sort.Interface = mainlineSortKeys(nil)
