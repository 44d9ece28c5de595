// Package entity defines the domain models for the candles feature.
package entity

import (
	"errors"
	"fmt"
	"time"
)

// Candle represents one OHLCV bar of an instrument at a fixed granularity.
type Candle struct {
	InstrumentID string      // Instrument identifier (e.g., "BTC-USD")
	Granularity  Granularity // Bar size; selects the physical table
	Time         time.Time   // UTC start of the bar, aligned to the granularity
	Open         float64     // Opening price
	High         float64     // Highest price during this period
	Low          float64     // Lowest price during this period
	Close        float64     // Closing price
	VolumeBase   float64     // Traded volume in the base currency
	VolumeQuote  float64     // Traded volume in the quote currency
}

// ErrInvalidCandle is wrapped by every Validate failure.
var ErrInvalidCandle = errors.New("invalid candle")

// Validate reports the first invariant the candle violates. It never repairs values.
func (c Candle) Validate() error {
	if c.InstrumentID == "" {
		return fmt.Errorf("%w: empty instrument id", ErrInvalidCandle)
	}
	if !c.Granularity.Valid() {
		return fmt.Errorf("%w: unknown granularity %q", ErrInvalidCandle, c.Granularity)
	}
	if !c.Granularity.Aligned(c.Time) {
		return fmt.Errorf("%w: %s %s is not aligned to %s", ErrInvalidCandle, c.InstrumentID, c.Time.UTC().Format(time.RFC3339), c.Granularity)
	}
	if c.Low > c.High {
		return fmt.Errorf("%w: %s low %v > high %v", ErrInvalidCandle, c.InstrumentID, c.Low, c.High)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("%w: %s open %v outside [%v, %v]", ErrInvalidCandle, c.InstrumentID, c.Open, c.Low, c.High)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: %s close %v outside [%v, %v]", ErrInvalidCandle, c.InstrumentID, c.Close, c.Low, c.High)
	}
	if c.VolumeBase < 0 || c.VolumeQuote < 0 {
		return fmt.Errorf("%w: %s negative volume", ErrInvalidCandle, c.InstrumentID)
	}
	return nil
}
