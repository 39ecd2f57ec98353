package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/pevans/iqnews/config"
	"github.com/pevans/iqnews/pipeline"
)

func main() {
	godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	arg := os.Getenv("TARGET_DATE")
	if len(os.Args) > 1 {
		arg = os.Args[1]
	}
	targetDate, err := p.TargetDate(arg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	result, err := p.RunLoad(context.Background(), targetDate)
	if err != nil {
		slog.Error("load failed", "target_date", targetDate, "error", err)
		os.Exit(1)
	}

	slog.Info("load completed",
		"status", result.Status,
		"inserted", result.LoadResult.Inserted,
		"updated", result.LoadResult.Updated,
		"skipped", result.LoadResult.Skipped,
		"total_news", result.AnalyticsResult.TotalNews)
}
