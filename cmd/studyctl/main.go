// Package main provides the studyctl CLI for the study content core.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bull/study-core/internal/config"
	"github.com/bull/study-core/internal/core"
	"github.com/bull/study-core/internal/logging"
	"github.com/bull/study-core/internal/worker"
)

var (
	configPath string

	flagTopic    string
	flagMinScore float64
	flagDocs     []string
	flagCount    int
	flagStyle    string
	flagWorkers  int
)

var rootCmd = &cobra.Command{
	Use:   "studyctl",
	Short: "Study content ingestion and retrieval core",
	Long: `CLI for the study content core: upload and process documents,
search indexed material, generate answers and flashcards, and inspect
provider health.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  REDIS_ADDR         Redis address (default: localhost:6379)
  OPENAI_API_KEY     OpenAI API key (embeddings + generation)
  ANTHROPIC_API_KEY  Anthropic API key (generation fallback)
  MISTRAL_API_KEY    Mistral API key (generation fallback)`,
}

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Upload files into a topic and queue them for processing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <document-id>...",
	Short: "Re-queue existing documents for processing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReprocess,
}

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's processing status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed material within a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a topic's indexed material",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards <file>",
	Short: "Generate flashcards from a text file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlashcards,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider circuit state and store connectivity",
	RunE:  runHealth,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the document processing worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	processCmd.Flags().StringVar(&flagTopic, "topic", "", "topic id (required)")
	processCmd.MarkFlagRequired("topic")

	searchCmd.Flags().StringVar(&flagTopic, "topic", "", "topic id (required)")
	searchCmd.Flags().Float64Var(&flagMinScore, "min-score", 0, "minimum similarity score")
	searchCmd.Flags().StringSliceVar(&flagDocs, "document", nil, "restrict to document ids")
	searchCmd.MarkFlagRequired("topic")

	askCmd.Flags().StringVar(&flagTopic, "topic", "", "topic id (required)")
	askCmd.MarkFlagRequired("topic")

	flashcardsCmd.Flags().IntVar(&flagCount, "count", 5, "number of cards")
	flashcardsCmd.Flags().StringVar(&flagStyle, "style", "basic", "card style: basic, cloze or multiple_choice")

	workerCmd.Flags().IntVar(&flagWorkers, "concurrency", 4, "concurrent documents")

	rootCmd.AddCommand(processCmd, reprocessCmd, statusCmd, searchCmd, askCmd, flashcardsCmd, healthCmd, workerCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, builds the logger and connects the service.
func setup(ctx context.Context) (*core.Service, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, nil, err
	}
	svc, err := core.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		doc, err := svc.Upload(ctx, flagTopic, filepath.Base(path), mimeType, data)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
		fmt.Printf("queued %s as document %s\n", filepath.Base(path), doc.ID)
	}
	fmt.Println("Run 'studyctl status <document-id>' to follow progress.")
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	for _, id := range args {
		if err := svc.ProcessDocument(ctx, id); err != nil {
			return fmt.Errorf("requeueing %s: %w", id, err)
		}
		fmt.Printf("requeued document %s\n", id)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	doc, err := svc.DocumentStatus(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("document: %s (%s)\n", doc.ID, doc.Filename)
	fmt.Printf("status:   %s\n", doc.Status)
	if doc.ErrorMessage != "" {
		fmt.Printf("error:    %s\n", doc.ErrorMessage)
	}
	if doc.ChunkCount > 0 {
		fmt.Printf("chunks:   %d\n", doc.ChunkCount)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	query := strings.Join(args, " ")
	results, err := svc.Search(ctx, flagTopic, query, flagMinScore, flagDocs...)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (chunk %d)\n", i+1, r.Score, r.DocumentFilename, r.Ordinal)
		fmt.Printf("   %s\n", r.Snippet)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	answer, err := svc.GenerateAnswer(ctx, flagTopic, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if answer.Degraded {
		fmt.Println("(AI providers unavailable, answer assembled from your materials)")
		fmt.Println()
	}
	fmt.Println(answer.Answer)
	fmt.Println()
	fmt.Printf("confidence: %.2f\n", answer.Confidence)
	for _, src := range answer.Sources {
		fmt.Printf("source: %s (score %.3f)\n", src.DocumentFilename, src.Score)
	}
	return nil
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	result, err := svc.GenerateFlashcards(ctx, string(data), flagStyle, flagCount)
	if err != nil {
		return err
	}
	if result.Degraded {
		fmt.Println("(AI providers unavailable, template cards generated)")
	}
	for i, card := range result.Cards {
		fmt.Printf("--- card %d (%s) ---\n", i+1, card.Type)
		fmt.Printf("front: %s\n", card.Front)
		fmt.Printf("back:  %s\n", card.Back)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	defer logger.Sync()

	if err := svc.Ping(ctx); err != nil {
		fmt.Printf("vector store: UNREACHABLE (%v)\n", err)
	} else {
		fmt.Println("vector store: ok")
	}

	out, err := json.MarshalIndent(svc.ProviderHealth(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Worker runs until SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := core.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	w := worker.NewWorker(cfg.Redis.Addr, flagWorkers, svc.Coordinator(), logger)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		w.Shutdown()
	}()

	logger.Info("worker started", zap.Int("concurrency", flagWorkers))
	return w.Run()
}
