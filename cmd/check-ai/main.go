package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kdimtricp/mediaverify/internal/config"
	"github.com/kdimtricp/mediaverify/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("🔍 Checking AI Analysis Results")
	fmt.Println("================================")

	if !cfg.AI.Configured() {
		fmt.Printf("⚠️  WARNING: AI provider %q has no API key!\n", cfg.AI.Provider)
		fmt.Println("   Set GEMINI_API_KEY or OPENAI_API_KEY")
		fmt.Println()
	} else {
		fmt.Println("✅ AI provider configured:")
		fmt.Printf("   - Provider: %s\n", cfg.AI.Provider)
		switch cfg.AI.Provider {
		case "gemini":
			fmt.Printf("   - Model: %s\n", cfg.AI.GeminiModel)
			fmt.Printf("   - Safety filters disabled: %t\n", cfg.AI.DisableSafety)
		case "openai":
			fmt.Printf("   - Model: %s\n", cfg.AI.OpenAIModel)
		}
		fmt.Printf("   - Attempts per aspect: %d\n", cfg.AI.MaxAttempts)
		fmt.Println()
	}

	repo, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer repo.Close()

	stats, err := repo.Stats(ctx)
	if err != nil {
		log.Fatal("Failed to count records:", err)
	}
	fmt.Printf("📁 Total uploads: %d\n", stats.Uploads)
	fmt.Printf("🧾 Total reports: %d\n\n", stats.Reports)

	reports, err := repo.ListReports(ctx)
	if err != nil {
		log.Fatal("Failed to query reports:", err)
	}

	if len(reports) == 0 {
		fmt.Println("No analyses found yet. Upload a file and call /detect to test!")
		return
	}

	fmt.Println("📊 Recent Analyses:")
	fmt.Println("-------------------")
	for i, report := range reports {
		if i == 5 {
			break
		}
		fmt.Printf("\n🎬 %s (%s)\n", report.FileName, report.MediaType)
		fmt.Printf("   Verdict: %s, %.1f%% authentic\n", report.ResultStatus, report.AuthenticityPercentage)
		if report.Model != "" {
			fmt.Printf("   Model: %s\n", report.Model)
		}
		if report.Explanation != "" {
			fmt.Printf("   📝 %.100s...\n", report.Explanation)
		}
	}

	fmt.Printf("\n✅ AI integration is working! Found %d analyses.\n", len(reports))
}
