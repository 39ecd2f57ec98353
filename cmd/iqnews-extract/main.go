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

	// Target date comes from the first argument, then TARGET_DATE, then
	// defaults to yesterday in the configured timezone.
	arg := os.Getenv("TARGET_DATE")
	if len(os.Args) > 1 {
		arg = os.Args[1]
	}
	targetDate, err := p.TargetDate(arg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	result, err := p.RunExtract(context.Background(), targetDate)
	if err != nil {
		slog.Error("extraction failed", "target_date", targetDate, "error", err)
		os.Exit(1)
	}

	slog.Info("extraction completed",
		"status", result.Status,
		"articles_scraped", result.ArticlesScraped,
		"inserted_count", result.InsertedCount,
		"output_file", result.OutputFile)
}
