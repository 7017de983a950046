package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kdimtricp/mediaverify/internal/ai"
	"github.com/kdimtricp/mediaverify/internal/config"
	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/detection"
	"github.com/kdimtricp/mediaverify/internal/logging"
	"github.com/kdimtricp/mediaverify/internal/media"
	"github.com/kdimtricp/mediaverify/internal/models"
	"github.com/kdimtricp/mediaverify/internal/storage"
)

func main() {
	var (
		filePath = flag.String("file", "", "Path of the image, video or audio file to analyze")
		mimeType = flag.String("type", "", "MIME type (guessed from the extension when empty)")
	)
	flag.Parse()

	if *filePath == "" {
		log.Fatal("Please provide a media file with -file flag")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if !cfg.AI.Configured() {
		log.Fatalf("AI provider %q is not configured", cfg.AI.Provider)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "analyze"})
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	repo, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer repo.Close()

	model, err := ai.NewModel(cfg.AI)
	if err != nil {
		log.Fatal("Failed to initialize AI provider:", err)
	}

	absPath, err := filepath.Abs(*filePath)
	if err != nil {
		log.Fatal("Invalid file path:", err)
	}
	dir, name := filepath.Split(absPath)

	// The file's directory acts as a local store so the pipeline reads the
	// bytes the same way it reads uploads.
	store, err := storage.NewLocalStorage(dir, "file://"+filepath.ToSlash(dir), "")
	if err != nil {
		log.Fatal("Failed to open file directory:", err)
	}

	deps := detection.Deps{
		Repo:      repo,
		Store:     store,
		Analyzer:  ai.NewAnalyzer(model, cfg.AI.MaxAttempts, logger.Named("ai")),
		Extractor: media.NewExtractor(logger.Named("metadata")),
		Logger:    logger.Named("detection"),
	}
	if frames, err := media.NewFrameExtractor(logger.Named("frames")); err == nil {
		deps.Frames = frames
	}
	svc := detection.NewService(deps, detection.Config{MaxFetchBytes: cfg.MaxUploadSize})

	contentType := *mimeType
	if contentType == "" {
		contentType = models.ContentTypeForFile(name)
	}

	fmt.Printf("Analyzing %s with %s\n", name, model.Name())

	results, err := svc.Detect(ctx, []detection.FileRef{{
		URL:      "file://" + filepath.ToSlash(absPath),
		Name:     name,
		Type:     contentType,
		FilePath: name,
	}})
	if err != nil {
		log.Fatal("Analysis failed:", err)
	}

	result := results[0]
	if result.Status != detection.StatusCompleted {
		fmt.Fprintf(os.Stderr, "Analysis failed: %s\n", result.Error)
		os.Exit(1)
	}

	report := result.Report
	fmt.Printf("Verdict: %s (%.1f%% authentic)\n", report.ResultStatus, report.AuthenticityPercentage)
	fmt.Printf("Report ID: %s\n\n", report.ID)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode report:", err)
	}
	fmt.Println(string(out))
}
