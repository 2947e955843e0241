package game

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deltas maps participant ids to signed balance changes for one event.
type Deltas map[uuid.UUID]decimal.Decimal

// Sum returns the total of all deltas. For any settled event it should be
// zero up to division rounding.
func (d Deltas) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range d {
		total = total.Add(v)
	}
	return total
}

// Volume returns the total amount transferred: the sum of the positive
// deltas.
func (d Deltas) Volume() decimal.Decimal {
	total := decimal.Zero
	for _, v := range d {
		if v.IsPositive() {
			total = total.Add(v)
		}
	}
	return total
}

// Inverted returns the exact negation of every delta, used for undo.
func (d Deltas) Inverted() Deltas {
	inv := make(Deltas, len(d))
	for id, v := range d {
		inv[id] = v.Neg()
	}
	return inv
}

// SettleEvent computes the balance transfer triggered by one recorded event.
// It is a pure function of its inputs: replaying the same event log against
// the same rosters always yields the same deltas.
//
// Participants are partitioned into holders (the triggering player appears
// in their active or substituted-out roster) and non-holders. If either side
// is empty there is no one to transfer between and the result is nil.
//
// The sign convention is asymmetric and deliberate:
//   - amount >= 0: every non-holder pays the flat amount; the pot
//     (non-holders x amount) is divided evenly among the holders.
//   - amount < 0: every holder pays |amount| x non-holders; every
//     non-holder receives |amount| x holders.
func SettleEvent(ev GameEvent, bets []Bet, participants []*Participant) Deltas {
	bet, ok := findBet(ev, bets)
	if !ok {
		return nil
	}

	var holders, nonHolders []*Participant
	for _, p := range participants {
		if p.Holds(ev.PlayerID) {
			holders = append(holders, p)
		} else {
			nonHolders = append(nonHolders, p)
		}
	}
	if len(holders) == 0 || len(nonHolders) == 0 {
		return nil
	}

	deltas := make(Deltas, len(participants))
	h := decimal.NewFromInt(int64(len(holders)))
	n := decimal.NewFromInt(int64(len(nonHolders)))

	if !bet.Amount.IsNegative() {
		share := bet.Amount.Mul(n).Div(h)
		for _, p := range holders {
			deltas[p.ID] = share
		}
		for _, p := range nonHolders {
			deltas[p.ID] = bet.Amount.Neg()
		}
		return deltas
	}

	pay := bet.Amount.Abs()
	for _, p := range holders {
		deltas[p.ID] = pay.Mul(n).Neg()
	}
	for _, p := range nonHolders {
		deltas[p.ID] = pay.Mul(h)
	}
	return deltas
}

// findBet resolves the bet an event settles against. Custom events are
// pinned to one specific bet by id; there may be many custom bets live at
// once and "any custom bet" would be wrong.
func findBet(ev GameEvent, bets []Bet) (Bet, bool) {
	if ev.Type == EventCustom {
		for _, b := range bets {
			if b.ID == ev.BetID {
				return b, true
			}
		}
		return Bet{}, false
	}
	for _, b := range bets {
		if b.Type == ev.Type {
			return b, true
		}
	}
	return Bet{}, false
}
