package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/relife/internal/analyzer"
	"github.com/bdougie/relife/internal/capture"
	"github.com/bdougie/relife/internal/extractor"
	"github.com/bdougie/relife/internal/search"
	"github.com/bdougie/relife/internal/server"
	"github.com/bdougie/relife/internal/timeline"
)

var (
	searchLimit int
	searchJSON  bool

	pruneDays int

	enhanceProvider string
	enhanceAPIKey   string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture the screen and serve the local API",
	Args:  cobra.NoArgs,
	RunE:  runRecord,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the recorded timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete entries older than a number of days",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance [timestamp]",
	Short: "Re-run OCR on one entry through an AI provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnhance,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", server.SearchLimit, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")

	pruneCmd.Flags().IntVar(&pruneDays, "days", -1, "keep this many days of history (-1 uses the saved retention setting)")

	enhanceCmd.Flags().StringVar(&enhanceProvider, "provider", "", "gemini, openai, claude or ollama (defaults to the saved provider)")
	enhanceCmd.Flags().StringVar(&enhanceAPIKey, "api-key", "", "provider API key (defaults to the saved key)")

	rootCmd.AddCommand(recordCmd, searchCmd, pruneCmd, enhanceCmd)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ocr := extractor.NewTesseract("eng")
	if !ocr.Available() {
		a.logger.Warn("tesseract not found; entries will be stored without text")
	}

	state := capture.NewState(time.Duration(a.settings.ScreenshotInterval()) * time.Second)
	recorder := capture.NewRecorder(capture.Config{
		State:    state,
		Grabber:  capture.NewFFmpegGrabber(a.cfg.CaptureFormat, a.cfg.CaptureInputs, a.cfg.PrimaryMonitorOnly),
		OCR:      ocr,
		Embedder: a.embedder,
		Store:    a.store,
		Frames:   a.frames,
		SelfMark: a.cfg.SelfWindowMarker,
		Logger:   a.logger,
	})

	sweeper, err := timeline.NewSweeper(a.timeline, a.settings, a.cfg.RetentionSchedule, a.logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Timeline: a.timeline,
		Searcher: search.NewSearcher(a.store, a.embedder),
		Enhancer: a.processor,
		State:    state,
		Settings: a.settings,
		Frames:   a.frames,
		Embedder: a.ollama,
		DataDir:  a.cfg.DataDir,
		Logger:   a.logger,
	})

	port := a.cfg.Port
	if p := a.settings.ServerPort(); p > 0 {
		port = strconv.Itoa(p)
	}
	addr := net.JoinHostPort("127.0.0.1", port)

	a.logger.Info("starting relife", "data_dir", a.cfg.DataDir, "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	g.Go(func() error {
		err := recorder.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	return g.Wait()
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := search.NewSearcher(a.store, a.embedder).Search(cmd.Context(), args[0], searchLimit)
	if errors.Is(err, search.ErrEmptyQuery) {
		cmd.Println("No results found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		when := time.UnixMicro(r.Timestamp).Format(time.DateTime)
		snippet := strings.Join(strings.Fields(r.Text), " ")
		cmd.Printf("[%d] %s (%.3f) %s\n", i+1, when, r.Score, snippet)
	}
	return nil
}

func runPrune(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	days := pruneDays
	if days < 0 {
		days = a.settings.RetentionDays()
	}
	if days < 0 {
		cmd.Println("Retention is set to keep everything; nothing to prune.")
		return nil
	}

	deleted, err := a.timeline.Prune(cmd.Context(), days)
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d entries older than %d days.\n", deleted, days)
	return nil
}

func runEnhance(cmd *cobra.Command, args []string) error {
	ts, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", args[0])
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	saved := a.settings.AIConfig()
	provider := enhanceProvider
	if provider == "" {
		provider = saved.Provider
	}
	apiKey := enhanceAPIKey
	if apiKey == "" {
		apiKey = saved.APIKey
	}

	res, err := a.processor.Enhance(cmd.Context(), analyzer.EnhanceRequest{
		Timestamp: ts,
		Provider:  provider,
		APIKey:    apiKey,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Stored %d words from %s.\n\n%s\n", len(res.WordsCoords), provider, res.Text)
	return nil
}
