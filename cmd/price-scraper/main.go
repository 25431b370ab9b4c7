package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/catalog-price-scraper/internal/app"
	"github.com/maltedev/catalog-price-scraper/internal/batch"
	"github.com/maltedev/catalog-price-scraper/internal/config"
	"github.com/maltedev/catalog-price-scraper/internal/logging"
)

func main() {
	var (
		mode      = flag.String("mode", "prices", "Operation to run: prices or availability")
		file      = flag.String("file", "", "File with one product URL per line (# starts a comment)")
		output    = flag.String("output", "", "Write JSON results to this file instead of stdout")
		workers   = flag.Int("workers", -1, "Worker pool size (0 = one per CPU, default from SCRAPER_WORKERS)")
		backend   = flag.String("backend", "", "Page backend: playwright or http (default from SCRAPER_BACKEND)")
		redisAddr = flag.String("redis-addr", "", "Publish outcomes to this Redis (default from REDIS_ADDR)")
		quiet     = flag.Bool("quiet", false, "Do not log progress per URL")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *workers >= 0 {
		cfg.Scraper.Workers = *workers
	}
	if *backend != "" {
		cfg.Scraper.Backend = *backend
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)

	urls, err := collectURLs(*file, flag.Args())
	if err != nil {
		logger.Error("failed to read urls", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reporter batch.Reporter = batch.NopReporter{}
	if !*quiet {
		reporter = batch.NewLogReporter(logger)
	}

	a, err := app.New(ctx, cfg, logger, app.Deps{Reporter: reporter})
	if err != nil {
		logger.Error("failed to initialize scraper", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var results any
	switch *mode {
	case "prices":
		results, err = a.Service.ScrapePrices(ctx, urls)
	case "availability":
		results, err = a.Service.CheckAvailability(ctx, urls)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("batch failed", "mode", *mode, "error", err)
		a.Close()
		os.Exit(2)
	}

	if err := writeResults(*output, results); err != nil {
		logger.Error("failed to write results", "error", err)
		a.Close()
		os.Exit(1)
	}
}

// collectURLs merges the URL file with the positional arguments.
func collectURLs(path string, args []string) ([]string, error) {
	var urls []string
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		fromFile, err := readURLs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		urls = append(urls, fromFile...)
	}
	return append(urls, args...), nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

func writeResults(path string, results any) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
