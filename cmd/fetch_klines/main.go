package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ctreader/config"
	"ctreader/internal/adapters/logger"
	"ctreader/internal/bootstrap"
	"ctreader/internal/chart"
	"ctreader/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	symbol := flag.String("symbol", cfg.Symbol, "ticker symbol")
	interval := flag.String("interval", cfg.Interval, "chart timeframe")
	limit := flag.Int("limit", 20, "number of candles")
	csvPath := flag.String("csv", "", "also write the candles to this CSV file")
	flag.Parse()

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	fetcher, err := bootstrap.NewFetcher(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RequestTimeout)
	defer cancel()

	history := fetcher.FetchHistory(ctx, *symbol, *interval, *limit)
	if history.Fallback() {
		fmt.Fprintf(os.Stderr, "exchange unreachable (%v), showing synthetic data\n", history.Err)
	}
	for _, c := range history.Value {
		fmt.Printf("%s  O:%s H:%s L:%s C:%s V:%.4f\n",
			time.Unix(c.Time, 0).UTC().Format(time.DateTime),
			chart.FormatPrice(c.Open), chart.FormatPrice(c.High),
			chart.FormatPrice(c.Low), chart.FormatPrice(c.Close), c.Volume)
	}

	if *csvPath != "" {
		if err := utils.WriteCandlesCSVFile(*csvPath, *symbol, *interval, history.Value); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *csvPath})
	}

	snap := fetcher.FetchSnapshot(ctx, *symbol)
	s := snap.Value
	fmt.Printf("\n%s 24h: %s %s  Vol:%s  MCap:%s\n", s.Symbol,
		chart.FormatPrice(s.Close), chart.FormatChange(s.ChangePercent),
		chart.FormatVolume(s.Volume), chart.FormatMarketCap(chart.MarketCap(s.Volume)))
}
