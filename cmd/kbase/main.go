// Package main is the kbase CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperjump/kbase/internal/cli"
	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/indexer"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/internal/server"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/stream"
	"github.com/hyperjump/kbase/internal/watcher"
	"github.com/hyperjump/kbase/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kbase/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence; when neither exists, defaults resolved against
// the current directory are used and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, cwdErr := os.Getwd()
		if cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && cwdErr == nil {
			cfg, err := config.Default(cwd)
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "server":
		runServer()
	case "status":
		runStatus()
	case "reload":
		runReload()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kbase version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds a logger; it exits the process on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = debugMode
	return cfg, resolvedConfigPath, logger
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	dir := fs.String("dir", "", "documents directory (default from config)")
	indexPath := fs.String("index", "", "knowledge base output path (default from config)")
	workers := fs.Int("workers", 0, "parallel extraction workers (default from config)")
	sourceLabel := fs.String("source", "", "source label written on every entry instead of the file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	watch := fs.Bool("watch", false, "keep running and re-ingest when documents change")
	noProgress := fs.Bool("no-progress", false, "disable the progress bar")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *dir != "" {
		cfg.Ingest.DocumentsDir = *dir
	}
	if *indexPath != "" {
		cfg.Storage.IndexPath = *indexPath
	}
	if *workers > 0 {
		cfg.Ingest.Workers = *workers
	}
	if *sourceLabel != "" {
		cfg.Ingest.SourceLabel = *sourceLabel
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedConfigPath))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	showProgress := !*noProgress && format == cli.OutputText
	ingest := func(ctx context.Context) bool {
		report, err := components.ingest(ctx, cfg, showProgress)
		if report != nil {
			if werr := cli.WriteReport(os.Stdout, report, cfg.Storage.IndexPath, format); werr != nil {
				fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
			return false
		}
		return true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ok := ingest(ctx)
	if !*watch {
		if !ok {
			os.Exit(1)
		}
		return
	}

	var mu sync.Mutex
	w := newDocumentWatcher(cfg, logger, func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		logger.Info("documents changed, re-ingesting", zap.Strings("paths", paths))
		ingest(ctx)
	})
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", strings.Join(w.Directories(), ", "))
	<-ctx.Done()
	w.Stop()
}

// newDocumentWatcher watches the documents directory tree and reports changed
// files that match the ingest patterns and have a supported format.
func newDocumentWatcher(cfg *config.Config, logger *zap.Logger, onChange func(paths []string)) *watcher.Watcher {
	matchGlobs := watcher.MatchGlobs(cfg.Ingest.DocumentsDir, cfg.Ingest.Patterns, cfg.Ingest.Excludes)
	return watcher.NewWatcher(
		[]string{cfg.Ingest.DocumentsDir},
		func(path string) bool { return extract.Supported(path) && matchGlobs(path) },
		onChange,
		watcher.WithRecursive(true),
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
	)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kbase search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Entries that contain the query verbatim rank first; other entries are scored by
the share of query characters they contain and must reach --min-score.

Examples:
  kbase search 开发环境
  kbase search "install the SDK" --top-k 5
  kbase search --server http://localhost:8080 --output json deploy
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v
		}
	}
	return defaultPath
}

// searchDefaultsFromConfig loads config at path and returns the default top-k and
// minimum score. On load failure the built-in defaults are returned.
func searchDefaultsFromConfig(path string) (topK int, minScore float64) {
	topK, minScore = models.DefaultTopK, search.DefaultMinScore
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return topK, minScore
	}
	return cfg.Search.DefaultTopK, cfg.Search.MinScore
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	defaultTopK, defaultMinScore := searchDefaultsFromConfig(configPathFromArgs(searchArgs, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the knowledge base directly)")
	topK := fs.Int("top-k", defaultTopK, "number of results")
	minScore := fs.Float64("min-score", defaultMinScore, "minimum score for partial matches")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	query := &models.Query{Query: queryStr, TopK: *topK}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		cfg.Search.MinScore = *minScore
		components, initErr := initializeComponents(cfg, logger)
		if initErr != nil {
			logger.Fatal("Failed to initialize", zap.Error(initErr))
		}
		defer components.Close()
		response, err = components.Retriever.Query(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.Query) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runAsk() {
	askArgs := searchArgsReorder(os.Args[2:])
	defaultTopK, _ := searchDefaultsFromConfig(configPathFromArgs(askArgs, defaultConfigPath))

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	model := fs.String("model", "", "chat model (default from config)")
	topK := fs.Int("top-k", defaultTopK, "number of knowledge-base passages to include")
	noKnowledge := fs.Bool("no-knowledge", false, "ask the model without retrieved context")
	_ = fs.Parse(askArgs)

	question := buildSearchQuery(fs.Args())
	if question == "" {
		fmt.Println("Usage: kbase ask [flags] <question>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *model != "" {
		cfg.Generation.Model = *model
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	messages, refs, err := components.askMessages(ctx, cfg, question, *topK, !*noKnowledge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval failed: %v\n", err)
		os.Exit(1)
	}
	for fragment := range components.Proxy.Stream(ctx, cfg.Generation.Model, messages) {
		fmt.Print(fragment)
	}
	fmt.Println()
	cli.WriteReferences(os.Stdout, refs)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("index_path", cfg.Storage.IndexPath),
		zap.Bool("debug", cfg.Debug),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if _, err := components.Store.Load(); err != nil {
		logger.Warn("knowledge base not loaded; requests will retry", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		store := components.Store
		watchSvc := watcher.WatchFile(cfg.Storage.IndexPath,
			func() { _ = store.Reload() },
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		logger.Info("reloading knowledge base on change", zap.String("path", cfg.Storage.IndexPath))
	}

	srv := server.NewServer(components.Retriever, components.Store, components.Proxy, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the knowledge base directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		body, err := getViaHTTP(*serverURL, "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(body)
		return
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	status, err := localStatus(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// localStatus describes the knowledge base at cfg.Storage.IndexPath without
// building the embedding or generation clients.
func localStatus(cfg *config.Config, logger *zap.Logger) (*cli.Status, error) {
	store := storage.NewIndexStore(cfg.Storage.IndexPath, logger)
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	info, err := store.Info()
	if err != nil {
		return nil, err
	}
	embeddingDesc := cfg.Embedding.Provider
	if cfg.Embedding.Model != "" {
		embeddingDesc += " (" + cfg.Embedding.Model + ")"
	} else if cfg.Embedding.ModelPath != "" {
		embeddingDesc += " (" + cfg.Embedding.ModelPath + ")"
	}
	return &cli.Status{
		IndexPath:  info.Path,
		Exists:     info.Exists,
		SizeBytes:  info.SizeBytes,
		ModTime:    info.ModTime,
		Entries:    len(entries),
		Dimensions: store.Dimensions(),
		Sources:    cli.CountSources(entries),
		Embedding:  embeddingDesc,
		ChatModel:  cfg.Generation.Model,
		OCR:        cfg.OCR.Engine,
	}, nil
}

func runReload() {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(strings.TrimSuffix(*serverURL, "/")+"/api/v1/reload", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reload failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Reload failed: server returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	_, _ = os.Stdout.Write(body)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fmt.Printf("Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", *path)
}

// writeDefaultConfig writes the built-in defaults to path. Relative paths in
// the file resolve against its directory when loaded.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

func getViaHTTP(serverURL, path string) ([]byte, error) {
	resp, err := http.Get(strings.TrimSuffix(serverURL, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Components holds initialized services.
type Components struct {
	Store     *storage.IndexStore
	Embedder  embedding.Embedder
	OCR       extract.OCR
	Extractor *extract.Extractor
	Retriever *search.Retriever
	Proxy     *stream.Proxy
	logger    *zap.Logger
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if closer, ok := c.OCR.(io.Closer); ok {
		_ = closer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store := storage.NewIndexStore(cfg.Storage.IndexPath, logger)

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	ocr, err := extract.NewOCR(cfg.OCR.Engine, extract.OCROptions{
		Languages: cfg.OCR.Languages,
		Model:     cfg.OCR.Model,
		BaseURL:   cfg.OCR.BaseURL,
		Logger:    logger,
	})
	if err != nil {
		if !errors.Is(err, extract.ErrOCRUnavailable) {
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to initialize ocr: %w", err)
		}
		logger.Warn("ocr unavailable, images in PDFs will be skipped",
			zap.String("engine", cfg.OCR.Engine), zap.Error(err))
		ocr = nil
	}
	extractorOpts := []extract.Option{extract.WithLogger(logger)}
	if ocr != nil {
		extractorOpts = append(extractorOpts, extract.WithOCR(ocr))
	}

	retriever := search.NewRetriever(store,
		search.WithMinScore(cfg.Search.MinScore),
		search.WithMaxTopK(cfg.Search.MaxTopK),
		search.WithLogger(logger),
	)
	proxy := stream.NewProxy(cfg.Generation.BaseURL,
		stream.WithDefaultOptions(&stream.GenerateOptions{
			Temperature: cfg.Generation.Temperature,
			NumPredict:  cfg.Generation.NumPredict,
		}),
		stream.WithLogger(logger),
	)

	return &Components{
		Store:     store,
		Embedder:  embedder,
		OCR:       ocr,
		Extractor: extract.NewExtractor(extractorOpts...),
		Retriever: retriever,
		Proxy:     proxy,
		logger:    logger,
	}, nil
}

// ingest runs one ingestion of cfg.Ingest.DocumentsDir into the store.
func (c *Components) ingest(ctx context.Context, cfg *config.Config, showProgress bool) (*indexer.Report, error) {
	opts := []indexer.IndexerOption{
		indexer.WithLogger(c.logger),
		indexer.WithPatterns(cfg.Ingest.Patterns, cfg.Ingest.Excludes),
		indexer.WithWorkers(cfg.Ingest.Workers),
		indexer.WithSourceLabel(cfg.Ingest.SourceLabel),
	}
	if showProgress {
		opts = append(opts, indexer.WithProgress(newProgressBar()))
	}
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	idx := indexer.NewIndexer(c.Extractor, chunker, c.Embedder, c.Store, opts...)
	return idx.Run(ctx, cfg.Ingest.DocumentsDir)
}

// newProgressBar returns a ProgressFunc that draws one bar per run, created
// once the file count is known.
func newProgressBar() indexer.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int, path string) {
		mu.Lock()
		defer mu.Unlock()
		if total == 0 {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		bar.Describe("[cyan]Ingesting[reset] " + utils.Truncate(path, 40))
		_ = bar.Set(done)
	}
}

// askMessages builds the conversation for a single question. With useKnowledge
// the question is augmented with retrieved passages and their references are returned.
func (c *Components) askMessages(ctx context.Context, cfg *config.Config, question string, topK int, useKnowledge bool) ([]models.Message, []search.Reference, error) {
	var messages []models.Message
	if cfg.Generation.SystemPrompt != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: cfg.Generation.SystemPrompt})
	}
	if !useKnowledge {
		return append(messages, models.UserMessage(question)), nil, nil
	}
	results, err := c.Retriever.Search(ctx, question, topK)
	if err != nil {
		return nil, nil, err
	}
	messages = append(messages, models.UserMessage(search.AugmentPrompt(question, results)))
	return messages, search.References(results), nil
}

func printUsage() {
	fmt.Println(`kbase - Local knowledge assistant

Usage:
  kbase ingest [flags]            Build the knowledge base from a documents directory
  kbase search [flags] <query>    Search the knowledge base
  kbase ask [flags] <question>    Ask a question answered from the knowledge base
  kbase server [flags]            Start the HTTP server
  kbase status [flags]            Show knowledge base status
  kbase reload [flags]            Ask a running server to re-read the knowledge base
  kbase init [flags]              Write a config.yaml with the default settings
  kbase version                   Show version
  kbase help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kbase/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging

Ingest Flags:
  --dir string       Documents directory (default from config)
  --index string     Knowledge base output path (default from config)
  --workers int      Parallel extraction workers
  --source string    Source label written on every entry
  --output string    Output format: text or json (default: text)
  --watch            Re-ingest when documents change
  --no-progress      Disable the progress bar

Search Flags:
  --server string    Server URL; empty reads the knowledge base directly
  --top-k int        Number of results (default from config, or 3)
  --min-score float  Minimum score for partial matches (default from config, or 0.5)
  --output string    Output format: text or json (default: text)

Ask Flags:
  --model string     Chat model (default from config)
  --top-k int        Number of passages to include
  --no-knowledge     Ask without retrieved context

Init Flags:
  --config string    Where to write the config (default: config.yaml)
  --force            Overwrite an existing file

Status Flags:
  --server string    Server URL; empty reads the knowledge base directly
  --output string    Output format: text or json (default: text)

Examples:
  kbase ingest --dir ./docs
  kbase ingest --watch
  kbase search 开发环境
  kbase ask "How do I configure the development environment?"
  kbase server
  kbase status --output json`)
}
