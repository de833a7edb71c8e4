// Package indicators computes technical indicators over Yahoo Finance history.
package indicators

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
	"finvisor/pkg/templates"
)

// Supported indicator names
const (
	SMA       = "sma"
	EMA       = "ema"
	RSI       = "rsi"
	MACD      = "macd"
	Bollinger = "bollinger"
	ATR       = "atr"
)

var allIndicators = []string{SMA, EMA, RSI, MACD, Bollinger, ATR}

// Args selects the symbol, history window and indicators
type Args struct {
	Symbol     string   `json:"symbol" jsonschema:"Stock ticker symbol, e.g. AAPL"`
	Period     string   `json:"period,omitempty" jsonschema:"History window used for the calculation: 3mo, 6mo, 1y, 2y. Default 6mo"`
	Indicators []string `json:"indicators,omitempty" jsonschema:"Any of sma, ema, rsi, macd, bollinger, atr. Default all"`
	Window     int      `json:"window,omitempty" jsonschema:"Lookback for SMA, EMA and Bollinger bands. Default 20"`
}

type snapshot struct {
	Symbol    string
	AsOf      string
	Close     float64
	SMA       *float64
	EMA       *float64
	Window    int
	RSI       *float64
	MACD      *macdValue
	Bollinger *bandValue
	ATR       *float64
}

type macdValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

type bandValue struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// NewTechnicalIndicatorsTool computes SMA, EMA, RSI, MACD, Bollinger bands and ATR on daily closes
func NewTechnicalIndicatorsTool(deps shared.Deps) (tool.Tool, error) {
	return technicalIndicators(deps).Build()
}

func technicalIndicators(deps shared.Deps) *shared.ToolBuilder[Args] {
	return shared.NewToolBuilder(
		"technical_indicators",
		"Compute technical indicators (SMA, EMA, RSI, MACD, Bollinger bands, ATR) from daily historical prices of a stock.",
		func(ctx tool.Context, args Args) (map[string]any, error) {
			if !deps.HasMarketData() {
				return nil, errors.Wrapf(errors.ErrUnavailable, "market data client not configured")
			}

			wanted, err := selectIndicators(args.Indicators)
			if err != nil {
				return nil, err
			}
			window := args.Window
			if window <= 0 {
				window = 20
			}
			period := args.Period
			if period == "" {
				period = "6mo"
			}

			bars, err := deps.Market.History(ctx, args.Symbol, period, "1d")
			if err != nil {
				return nil, errors.Wrap(err, "technical_indicators: load history")
			}
			// MACD needs slow period + signal - 1 bars before the first value
			if err := ValidateMinLength(bars, max(window, 34)+1, "technical_indicators"); err != nil {
				return nil, err
			}

			data, err := PrepareData(bars)
			if err != nil {
				return nil, err
			}

			snap := compute(data, wanted, window)
			snap.Symbol = strings.ToUpper(strings.TrimSpace(args.Symbol))
			snap.AsOf = bars[len(bars)-1].Time.Format(time.DateOnly)

			summary, err := templates.Get().Render("tools/technical_indicators", snap)
			if err != nil {
				return nil, errors.Wrap(err, "technical_indicators: render summary")
			}

			return map[string]any{
				"symbol":     snap.Symbol,
				"as_of":      snap.AsOf,
				"close":      round(snap.Close),
				"indicators": values(snap),
				"summary":    summary,
			}, nil
		},
		deps,
	).
		WithTimeout(20*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithStats()
}

func selectIndicators(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return allIndicators, nil
	}

	out := make([]string, 0, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if !slices.Contains(allIndicators, name) {
			return nil, errors.NewValidationError("indicators", "unsupported indicator, use "+strings.Join(allIndicators, ", "), name)
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func compute(data *TalibData, wanted []string, window int) snapshot {
	snap := snapshot{Window: window}
	snap.Close, _ = GetLastValue(data.Close)

	last := func(values []float64) *float64 {
		v, err := GetLastValue(values)
		if err != nil || math.IsNaN(v) {
			return nil
		}
		v = round(v)
		return &v
	}

	for _, name := range wanted {
		switch name {
		case SMA:
			snap.SMA = last(talib.Sma(data.Close, window))
		case EMA:
			snap.EMA = last(talib.Ema(data.Close, window))
		case RSI:
			snap.RSI = last(talib.Rsi(data.Close, 14))
		case MACD:
			macd, signal, hist := talib.Macd(data.Close, 12, 26, 9)
			m, s, h := last(macd), last(signal), last(hist)
			if m != nil && s != nil && h != nil {
				snap.MACD = &macdValue{MACD: *m, Signal: *s, Histogram: *h}
			}
		case Bollinger:
			upper, middle, lower := talib.BBands(data.Close, window, 2, 2, talib.SMA)
			u, m, l := last(upper), last(middle), last(lower)
			if u != nil && m != nil && l != nil {
				snap.Bollinger = &bandValue{Upper: *u, Middle: *m, Lower: *l}
			}
		case ATR:
			snap.ATR = last(talib.Atr(data.High, data.Low, data.Close, 14))
		}
	}
	return snap
}

func values(s snapshot) map[string]any {
	out := map[string]any{}
	if s.SMA != nil {
		out["sma"] = *s.SMA
	}
	if s.EMA != nil {
		out["ema"] = *s.EMA
	}
	if s.RSI != nil {
		out["rsi"] = *s.RSI
	}
	if s.MACD != nil {
		out["macd"] = map[string]float64{"macd": s.MACD.MACD, "signal": s.MACD.Signal, "histogram": s.MACD.Histogram}
	}
	if s.Bollinger != nil {
		out["bollinger"] = map[string]float64{"upper": s.Bollinger.Upper, "middle": s.Bollinger.Middle, "lower": s.Bollinger.Lower}
	}
	if s.ATR != nil {
		out["atr"] = *s.ATR
	}
	return out
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
