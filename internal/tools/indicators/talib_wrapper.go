package indicators

import (
	"finvisor/internal/adapters/yahoo"
	"finvisor/pkg/errors"
)

// TalibData holds OHLCV data in format expected by ta-lib
type TalibData struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// PrepareData converts bars to ta-lib format.
// Yahoo returns bars oldest first, which is the order ta-lib expects.
func PrepareData(bars []yahoo.Bar) (*TalibData, error) {
	if len(bars) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no price bars provided")
	}
	data := &TalibData{
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, bar := range bars {
		data.Open[i] = bar.Open
		data.High[i] = bar.High
		data.Low[i] = bar.Low
		data.Close[i] = bar.Close
		data.Volume[i] = float64(bar.Volume)
	}
	return data, nil
}

// GetLastValue returns the most recent value from ta-lib output
// ta-lib returns full array, we typically only need the latest value
func GetLastValue(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.Wrapf(errors.ErrInternal, "no values returned from indicator")
	}
	return values[len(values)-1], nil
}

// ValidateMinLength checks if we have enough data for indicator calculation
func ValidateMinLength(bars []yahoo.Bar, minLength int, indicatorName string) error {
	if len(bars) < minLength {
		return errors.Wrapf(errors.ErrInvalidInput,
			"%s requires at least %d bars, got %d; use a longer period",
			indicatorName, minLength, len(bars))
	}
	return nil
}
