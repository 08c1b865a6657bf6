package utils

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ctreader/internal/domain"
)

// WriteCandlesCSV writes candles as CSV rows with a header line.
func WriteCandlesCSV(w io.Writer, symbol, interval string, candles []domain.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"open_time", "symbol", "interval", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
			symbol,
			interval,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCandlesCSVFile creates filename, including missing directories, and writes candles to it.
func WriteCandlesCSVFile(filename, symbol, interval string, candles []domain.Candle) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCandlesCSV(file, symbol, interval, candles); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
