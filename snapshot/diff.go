/*
diff.go - Period-over-period snapshot comparison

Compares two snapshots of the same station (an initial and a current one)
and classifies each indicator as improved, worsened or unchanged. The loss
rate carries a critical boundary at -30%: crossing it outweighs the raw
direction of the move, and the check order matters (a raw improvement is
recognized before boundary crossings are considered).
*/
package snapshot

import "github.com/shopspring/decimal"

// Impact classifies how one indicator moved between two snapshots.
type Impact string

const (
	Improved  Impact = "improved"
	Worsened  Impact = "worsened"
	Unchanged Impact = "unchanged"
)

// criticalLossRate is the boundary below which the loss rate is considered
// critical (rates are negative percentages).
var criticalLossRate = decimal.NewFromInt(-30)

// DiffReport is the per-indicator verdict between two snapshots.
type DiffReport struct {
	LossRate  Impact `json:"loss_rate"`
	YoYRisk   Impact `json:"yoy_risk"`
	Overstock Impact `json:"overstock"`
}

// Diff compares a current snapshot against an initial one. Either may be
// nil; a missing side generally yields Unchanged, except that a current
// loss rate already in the critical zone with no baseline reads Worsened.
func Diff(current, initial *Snapshot) DiffReport {
	return DiffReport{
		LossRate:  diffLossRate(current, initial),
		YoYRisk:   diffYoYRisk(current, initial),
		Overstock: diffOverstock(current, initial),
	}
}

func diffLossRate(current, initial *Snapshot) Impact {
	if current == nil || current.LossRate == nil {
		return Unchanged
	}
	cur := *current.LossRate

	if initial == nil || initial.LossRate == nil {
		if cur.LessThan(criticalLossRate) {
			return Worsened
		}
		return Unchanged
	}
	init := *initial.LossRate

	// A higher (less negative) rate is an improvement, and takes
	// precedence over everything else.
	if cur.GreaterThan(init) {
		return Improved
	}
	// Crossing into the critical zone.
	if init.GreaterThanOrEqual(criticalLossRate) && cur.LessThan(criticalLossRate) {
		return Worsened
	}
	// Leaving the critical zone.
	if init.LessThan(criticalLossRate) && cur.GreaterThanOrEqual(criticalLossRate) {
		return Improved
	}
	if cur.LessThan(init) {
		return Worsened
	}
	return Unchanged
}

func diffYoYRisk(current, initial *Snapshot) Impact {
	if current == nil || initial == nil {
		return Unchanged
	}
	switch {
	case initial.YoYRisk && !current.YoYRisk:
		return Improved
	case !initial.YoYRisk && current.YoYRisk:
		return Worsened
	default:
		return Unchanged
	}
}

func diffOverstock(current, initial *Snapshot) Impact {
	if current == nil || initial == nil {
		return Unchanged
	}
	if current.ExhaustionDate == nil || initial.ExhaustionDate == nil {
		return Unchanged
	}
	// An earlier exhaustion date means the stock is actually moving.
	switch {
	case current.ExhaustionDate.Before(*initial.ExhaustionDate):
		return Improved
	case current.ExhaustionDate.After(*initial.ExhaustionDate):
		return Worsened
	default:
		return Unchanged
	}
}
