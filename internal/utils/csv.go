package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"binarylab/internal/domain"
)

// WriteCandlesToCSV writes candles to a CSV file with a header row.
func WriteCandlesToCSV(candles []*domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"asset", "timeframe", "timestamp", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		writer.Write([]string{
			c.Asset,
			strconv.FormatInt(c.Timeframe, 10),
			strconv.FormatInt(c.Timestamp, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadCandlesFromCSV reads candles from a CSV file written by
// WriteCandlesToCSV. The header row is required.
func ReadCandlesFromCSV(filename string) ([]*domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header from %s: %w", filename, err)
	}
	if len(header) < 8 || header[0] != "asset" {
		return nil, fmt.Errorf("unexpected CSV header in %s: %v", filename, header)
	}

	var candles []*domain.Candle
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record from %s: %w", filename, err)
		}
		line++

		candle, err := parseCandleRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// WriteTicksToCSV writes raw ticks to a CSV file with a header row.
func WriteTicksToCSV(ticks []*domain.Tick, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"asset", "timestamp_ms", "price", "quantity", "direction"})

	for _, t := range ticks {
		writer.Write([]string{
			t.Asset,
			strconv.FormatInt(t.Timestamp, 10),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatInt(int64(t.Direction), 10),
		})
	}
	return writer.Error()
}

// ReadTicksFromCSV reads ticks from a CSV file written by WriteTicksToCSV.
func ReadTicksFromCSV(filename string) ([]*domain.Tick, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header from %s: %w", filename, err)
	}
	if len(header) < 5 || header[0] != "asset" || header[1] != "timestamp_ms" {
		return nil, fmt.Errorf("unexpected CSV header in %s: %v", filename, header)
	}

	var ticks []*domain.Tick
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record from %s: %w", filename, err)
		}
		line++

		tick, err := parseTickRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func parseTickRecord(record []string) (*domain.Tick, error) {
	if len(record) < 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(record))
	}

	timestamp, err := strconv.ParseInt(record[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", record[1], err)
	}
	price, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", record[2], err)
	}
	quantity, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quantity %q: %w", record[3], err)
	}
	direction, err := strconv.ParseInt(record[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing direction %q: %w", record[4], err)
	}

	return &domain.Tick{
		Asset:     record[0],
		Timestamp: timestamp,
		Price:     price,
		Quantity:  quantity,
		Direction: int(direction),
	}, nil
}

func parseCandleRecord(record []string) (*domain.Candle, error) {
	if len(record) < 8 {
		return nil, fmt.Errorf("expected 8 fields, got %d", len(record))
	}

	timeframe, err := strconv.ParseInt(record[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing timeframe %q: %w", record[1], err)
	}
	timestamp, err := strconv.ParseInt(record[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", record[2], err)
	}

	prices := make([]float64, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(record[3+i], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: %w", name, record[3+i], err)
		}
		prices[i] = v
	}

	return &domain.Candle{
		Asset:     record[0],
		Timeframe: timeframe,
		Timestamp: timestamp,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, nil
}
