/*
reference.go - Human-readable movement references

Every ledger entry carries a reference like TR-20260826-153001-007:
category prefix, calendar day, wall-clock time, then a per-day per-category
sequence number. The sequence is reserved through the store inside the same
transaction as the ledger write, so concurrent movements on the same day
never collide and a rolled-back movement never leaves a visible gap a
reader could mistake for a missing record.
*/
package stock

import (
	"context"
	"fmt"
	"time"
)

const (
	refDayFormat  = "20060102"
	refTimeFormat = "150405"
)

func referencePrefix(c Category) string {
	switch c {
	case CategoryTransfer:
		return "TR"
	case CategorySupply:
		return "SUP"
	case CategoryRegularization:
		return "REG"
	default:
		return "MV"
	}
}

// nextReference reserves the next sequence number for (category, day) and
// formats the full reference. Must run inside the caller's transaction.
func nextReference(ctx context.Context, s Store, c Category, at time.Time) (string, error) {
	day := at.Format(refDayFormat)
	seq, err := s.NextSequence(ctx, c, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%03d", referencePrefix(c), day, at.Format(refTimeFormat), seq), nil
}
