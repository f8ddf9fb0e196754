package fetcher

import (
	"sort"

	"github.com/shopspring/decimal"
)

// StakeEventKind tells whether an event adds to or removes from the stake
type StakeEventKind int

const (
	StakeAdd StakeEventKind = iota
	StakeRemove
)

// StakeEvent is one stake or unstake event in chain order
type StakeEvent struct {
	Kind   StakeEventKind
	Amount decimal.Decimal
	// Timestamp orders events; Sequence breaks ties within one timestamp.
	Timestamp int64
	Sequence  int64
}

// ReplayStake sorts events by (timestamp, sequence) and returns the
// running total after replaying all of them. Upstream order is not trusted.
// A negative result, e.g. from rewards withdrawn with the principal, is
// reported as zero.
func ReplayStake(events []StakeEvent) decimal.Decimal {
	sorted := make([]StakeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Sequence < sorted[j].Sequence
	})

	total := decimal.Zero
	for _, ev := range sorted {
		switch ev.Kind {
		case StakeAdd:
			total = total.Add(ev.Amount)
		case StakeRemove:
			total = total.Sub(ev.Amount)
		}
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
