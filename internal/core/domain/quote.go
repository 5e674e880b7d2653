package domain

import "time"

// Quote is one price observation for a tracked symbol.
type Quote struct {
	Symbol    Symbol       `json:"symbol"`
	Name      string       `json:"name"`
	Base      string       `json:"base"`
	Rate      float64      `json:"rate"`
	Timestamp time.Time    `json:"timestamp"`
	Change    *PriceChange `json:"change,omitempty"`
}

// PriceChange compares a quote against the previous day's rate.
type PriceChange struct {
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
	Percent  float64 `json:"percent"`
}

// NewPriceChange returns nil when previous is not a usable baseline.
func NewPriceChange(current, previous float64) *PriceChange {
	if previous == 0 {
		return nil
	}
	delta := current - previous
	return &PriceChange{
		Previous: previous,
		Delta:    delta,
		Percent:  delta / previous * 100,
	}
}

// PricePoint is one day's rate in a History.
type PricePoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// History is a daily rate series for one symbol, oldest first.
type History struct {
	Symbol Symbol       `json:"symbol"`
	Name   string       `json:"name"`
	Base   string       `json:"base"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Points []PricePoint `json:"points"`
}

// Change compares the last point against the first. It is nil for series
// shorter than two points.
func (h History) Change() *PriceChange {
	if len(h.Points) < 2 {
		return nil
	}
	return NewPriceChange(h.Points[len(h.Points)-1].Rate, h.Points[0].Rate)
}

// Conversion is a symbol's rate re-expressed in another currency.
type Conversion struct {
	Symbol    Symbol    `json:"symbol"`
	Name      string    `json:"name"`
	Base      string    `json:"base"`
	Currency  string    `json:"currency"`
	Rate      float64   `json:"rate"`
	Converted float64   `json:"converted"`
	Timestamp time.Time `json:"timestamp"`
}
