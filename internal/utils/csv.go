package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"atrSignalBot/internal/domain"
)

// backtestColumns maps accepted header names to canonical fields. Both the
// database column names and the backtesting job's report names are accepted.
var backtestColumns = map[string]string{
	"symbol":            "symbol",
	"timeframe":         "timeframe",
	"start":             "start_date",
	"start_date":        "start_date",
	"# trades":          "num_trades",
	"num_trades":        "num_trades",
	"return":            "return_percentage",
	"return_percentage": "return_percentage",
	"winrate":           "win_rate",
	"win_rate":          "win_rate",
	"max_drawdown":      "max_drawdown",
	"tp_m":              "tp_multiplier",
	"tp_multiplier":     "tp_multiplier",
	"sl_m":              "sl_multiplier",
	"sl_multiplier":     "sl_multiplier",
}

var requiredBacktestFields = []string{
	"symbol", "timeframe", "start_date", "num_trades", "return_percentage",
	"win_rate", "max_drawdown", "tp_multiplier", "sl_multiplier",
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ReadBacktestResultsFromCSV parses backtest rows with a header line.
// Percentages are rounded to two decimals. Timestamps without a zone are UTC.
func ReadBacktestResultsFromCSV(r io.Reader) ([]*domain.BacktestResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("backtest csv is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if field, ok := backtestColumns[strings.ToLower(strings.TrimSpace(name))]; ok {
			index[field] = i
		}
	}
	for _, f := range requiredBacktestFields {
		if _, ok := index[f]; !ok {
			return nil, fmt.Errorf("backtest csv is missing column %q", f)
		}
	}

	var results []*domain.BacktestResult
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res, err := parseBacktestRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func parseBacktestRecord(record []string, index map[string]int) (*domain.BacktestResult, error) {
	get := func(field string) string { return strings.TrimSpace(record[index[field]]) }

	res := &domain.BacktestResult{
		Symbol:    strings.ToUpper(get("symbol")),
		Timeframe: get("timeframe"),
	}
	if res.Symbol == "" || res.Timeframe == "" {
		return nil, fmt.Errorf("symbol and timeframe are required")
	}

	start, err := parseTime(get("start_date"))
	if err != nil {
		return nil, err
	}
	res.StartDate = start

	trades, err := strconv.ParseFloat(get("num_trades"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid num_trades %q: %w", get("num_trades"), err)
	}
	res.NumTrades = int(trades)

	floats := []struct {
		field string
		dst   *float64
		round bool
	}{
		{"return_percentage", &res.ReturnPercentage, true},
		{"win_rate", &res.WinRate, true},
		{"max_drawdown", &res.MaxDrawdown, true},
		{"tp_multiplier", &res.TPMultiplier, false},
		{"sl_multiplier", &res.SLMultiplier, false},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(get(f.field), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.field, get(f.field), err)
		}
		if f.round {
			v = math.Round(v*100) / 100
		}
		*f.dst = v
	}
	if res.TPMultiplier <= 0 || res.SLMultiplier <= 0 {
		return nil, fmt.Errorf("multipliers must be positive")
	}
	return res, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start date %q", s)
}

// WriteSnapshotToCSV dumps a snapshot with its indicator columns.
func WriteSnapshotToCSV(snapshot *domain.MarketSnapshot, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume", "final", "atr", "long", "short"}); err != nil {
		return err
	}
	if snapshot != nil {
		for _, row := range snapshot.Rows {
			k := row.Kline
			if k == nil {
				continue
			}
			if err := writer.Write([]string{
				k.OpenTime.UTC().Format(time.RFC3339),
				k.CloseTime.UTC().Format(time.RFC3339),
				k.Symbol,
				k.Interval,
				strconv.FormatFloat(k.Open, 'f', -1, 64),
				strconv.FormatFloat(k.High, 'f', -1, 64),
				strconv.FormatFloat(k.Low, 'f', -1, 64),
				strconv.FormatFloat(k.Close, 'f', -1, 64),
				strconv.FormatFloat(k.Volume, 'f', -1, 64),
				strconv.FormatBool(k.IsFinal),
				strconv.FormatFloat(row.ATR, 'f', -1, 64),
				strconv.FormatBool(row.Long),
				strconv.FormatBool(row.Short),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
