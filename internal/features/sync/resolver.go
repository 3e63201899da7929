package sync

import (
	"time"

	"pos-billing/internal/remote"
)

// Winner names which copy of a record a resolution picked.
type Winner int

const (
	WinnerRemote Winner = iota
	WinnerLocal
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts the timestamp shapes the two backends and the JSON
// snapshots produce: RFC 3339 with or without zone, space-separated DATETIME,
// any fractional-second digit count, optional trailing Z. The result is
// truncated to microseconds so purely-cosmetic precision differences never
// make one side look newer.
func parseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.Truncate(time.Microsecond), true
	case string:
		if v == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Truncate(time.Microsecond), true
			}
		}
	}
	return time.Time{}, false
}

// recordTimestamp finds the applicable timestamp of rec per the table's spec,
// trying the configured fields most significant first.
func recordTimestamp(rec remote.Record, spec TableSpec) (time.Time, bool) {
	for _, field := range spec.TimestampFields {
		if value, ok := rec[field]; ok {
			if t, parsed := parseTimestamp(value); parsed {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ResolveByTimestamp applies last-writer-wins between a local candidate and
// the current remote row. The side that has a parseable timestamp beats the
// side that does not; with neither, and on exact ties, the authoritative
// remote copy wins.
func ResolveByTimestamp(local, remoteRec remote.Record, spec TableSpec) Winner {
	localTS, localOK := recordTimestamp(local, spec)
	remoteTS, remoteOK := recordTimestamp(remoteRec, spec)

	switch {
	case !localOK && !remoteOK:
		return WinnerRemote
	case !localOK:
		return WinnerRemote
	case !remoteOK:
		return WinnerLocal
	case localTS.After(remoteTS):
		return WinnerLocal
	default:
		return WinnerRemote
	}
}

// ResolveByRule applies the table's conflict class: transactional tables the
// billing app exclusively writes always keep the local copy, everything else
// defers to timestamps.
func ResolveByRule(spec TableSpec, local, remoteRec remote.Record) Winner {
	if spec.Rule == RuleLocalAlwaysWins {
		return WinnerLocal
	}
	return ResolveByTimestamp(local, remoteRec, spec)
}
