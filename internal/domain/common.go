package domain

import "fmt"

// Direction is the side of a detected entry signal.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Label returns the upper-case form used in alert messages.
func (d Direction) Label() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// SignalStatus represents the lifecycle status of a journaled signal.
type SignalStatus string

// SignalOpen marks a journaled alert; the bot never tracks it further.
const SignalOpen SignalStatus = "open"

// PairKey identifies a (symbol, timeframe) pair.
type PairKey struct {
	Symbol    string
	Timeframe string
}

// String renders the pair as "SYMBOL/timeframe".
func (k PairKey) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Timeframe)
}
