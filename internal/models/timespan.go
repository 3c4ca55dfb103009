package models

// Timespan is a requested historical window: a fixed day count or ALL
// (everything since the wallet's first transaction).
type Timespan string

const (
	Timespan7d   Timespan = "7d"
	Timespan30d  Timespan = "30d"
	Timespan90d  Timespan = "90d"
	Timespan365d Timespan = "365d"
	TimespanAll  Timespan = "ALL"
)

var timespanDays = map[Timespan]int{
	Timespan7d:   7,
	Timespan30d:  30,
	Timespan90d:  90,
	Timespan365d: 365,
}

// Valid reports whether ts is a supported timespan.
func (ts Timespan) Valid() bool {
	if ts == TimespanAll {
		return true
	}
	_, ok := timespanDays[ts]
	return ok
}

// Days returns the fixed day count for ts. ok is false for ALL, whose day
// count depends on the wallet's ledger.
func (ts Timespan) Days() (days int, ok bool) {
	days, ok = timespanDays[ts]
	return days, ok
}

// FixedTimespans lists the timespans with a fixed day count, in the order
// the daily summary batch walks them.
func FixedTimespans() []Timespan {
	return []Timespan{Timespan7d, Timespan30d, Timespan90d, Timespan365d}
}
