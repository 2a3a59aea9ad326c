package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTimestampLayouts are tried in order when CSVOptions.TimestampLayouts is empty.
var DefaultTimestampLayouts = []string{
	"02-01-2006 15:04",
	"02-01-2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02",
}

// ErrNoTicks is returned when a data source holds no usable rows.
var ErrNoTicks = errors.New("no historical ticks")

// Tick is one historical execution.
type Tick struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// CSVOptions selects the columns of a historical trades file.
type CSVOptions struct {
	TimestampColumn  string
	PriceColumn      string
	TimestampLayouts []string
	// Location applies to layouts without a zone. Defaults to UTC.
	Location *time.Location
}

// LoadTicks reads and sorts the ticks stored in a CSV file.
func LoadTicks(path string, opts CSVOptions) ([]Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open historical data: %w", err)
	}
	defer f.Close()

	ticks, err := ReadTicks(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

// ReadTicks parses CSV rows with a header line. Rows are returned in ascending
// timestamp order; rows sharing a timestamp keep their file order.
func ReadTicks(r io.Reader, opts CSVOptions) ([]Tick, error) {
	layouts := opts.TimestampLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimestampLayouts
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoTicks
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	tsIdx, priceIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case opts.TimestampColumn:
			tsIdx = i
		case opts.PriceColumn:
			priceIdx = i
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("column %q not found", opts.TimestampColumn)
	}
	if priceIdx < 0 {
		return nil, fmt.Errorf("column %q not found", opts.PriceColumn)
	}

	var ticks []Tick
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) <= tsIdx || len(record) <= priceIdx {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(tsIdx, priceIdx)+1, len(record))
		}

		ts, err := parseTimestamp(strings.TrimSpace(record[tsIdx]), layouts, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(record[priceIdx]), ",", ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q: %w", line, record[priceIdx], err)
		}
		ticks = append(ticks, Tick{Timestamp: ts, Price: price})
	}

	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	sortTicks(ticks)
	return ticks, nil
}

func parseTimestamp(value string, layouts []string, loc *time.Location) (time.Time, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func sortTicks(ticks []Tick) {
	slices.SortStableFunc(ticks, func(a, b Tick) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// sortedCopy leaves the caller's slice untouched.
func sortedCopy(ticks []Tick) []Tick {
	out := slices.Clone(ticks)
	sortTicks(out)
	return out
}
