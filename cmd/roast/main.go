package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/timmy/roastpage/internal/client"
	"github.com/timmy/roastpage/internal/logger"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "warn",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "roast-cli",
	})
	logger.SetDefaultLogger(appLogger)

	targetURL := flag.String("url", "", "Landing page URL to roast")
	retryID := flag.String("retry", "", "Retry the roast with this id and wait for it")
	list := flag.Bool("list", false, "List recent roasts")
	limit := flag.Int("limit", 20, "Number of roasts to list")
	server := flag.String("server", envOr("ROAST_SERVER", "http://localhost:8080"), "Roast API base URL")
	interval := flag.Duration("interval", 2*time.Second, "Polling interval while waiting")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up waiting after this long")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*server, 30*time.Second)

	var err error
	switch {
	case *list:
		err = runList(ctx, c, *limit)
	case *retryID != "":
		err = runRetry(ctx, c, *retryID, *interval, *timeout)
	case *targetURL != "":
		err = runCreate(ctx, c, *targetURL, *interval, *timeout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		appLogger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func runCreate(ctx context.Context, c *client.Client, targetURL string, interval, timeout time.Duration) error {
	created, err := c.Create(ctx, targetURL)
	if err != nil {
		return fmt.Errorf("create roast: %w", err)
	}
	if created.LimitedFunctionality {
		fmt.Printf("Limited functionality, missing: %v\n", created.MissingOptionalVars)
	}
	fmt.Printf("Roast %s queued, waiting...\n", created.ID)
	return wait(ctx, c, created.ID, interval, timeout)
}

func runRetry(ctx context.Context, c *client.Client, id string, interval, timeout time.Duration) error {
	if err := c.Retry(ctx, id); err != nil {
		return fmt.Errorf("retry roast: %w", err)
	}
	fmt.Printf("Roast %s restarted, waiting...\n", id)
	return wait(ctx, c, id, interval, timeout)
}

func runList(ctx context.Context, c *client.Client, limit int) error {
	roasts, err := c.List(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("list roasts: %w", err)
	}
	for _, r := range roasts {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprint(*r.Score)
		}
		fmt.Printf("%s  %-10s  %3s  %s  %s\n", r.ID, r.Status, score, r.CreatedAt.Local().Format(time.DateTime), r.URL)
	}
	return nil
}

func wait(ctx context.Context, c *client.Client, id string, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.Wait(ctx, id, interval)
	if err != nil {
		return fmt.Errorf("wait for roast %s: %w", id, err)
	}
	printResult(result)
	return nil
}

func printResult(result *client.Result) {
	r := result.Roast
	fmt.Printf("\n%s (%s)\n", r.URL, r.Status)
	if r.Score != nil {
		fmt.Printf("Score: %d/100\n", *r.Score)
	}
	if r.Analysis != nil {
		names := make([]string, 0, len(r.Analysis.CategoryScores))
		for name := range r.Analysis.CategoryScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-32s %3d\n", name, r.Analysis.CategoryScores[name])
		}
	}
	if len(result.FeedbackItems) > 0 {
		fmt.Println("\nFeedback:")
		for _, f := range result.FeedbackItems {
			fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Category, f.Feedback)
		}
	}
	if r.Analysis != nil && len(r.Analysis.Positives) > 0 {
		fmt.Println("\nWhat works:")
		for _, p := range r.Analysis.Positives {
			fmt.Printf("  + %s\n", p)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
