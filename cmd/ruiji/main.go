// Package main is the ruiji CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/watcher"
	"github.com/hyperjump/ruiji/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ruiji/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory is preferred if it exists, so "ruiji server" run from a project directory
// picks up that project's config. Returns the config and the path that was loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "generate":
		runGenerate()
	case "upload":
		runUpload()
	case "image":
		runImage()
	case "embedding":
		runEmbedding()
	case "similar":
		runSimilar()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("ruiji version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (skipped candidates, inbox events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	inbox := watcher.NewInbox(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) error {
			resp, err := components.Images.UploadFile(ctx, path)
			if err != nil {
				return err
			}
			if components.Metrics != nil {
				components.Metrics.ObserveImage("inbox")
			}
			logger.Info("inbox image ingested", zap.String("path", path), zap.String("image_id", resp.ImageID))
			return nil
		},
		watcher.WithLogger(logger),
		watcher.WithLedger(components.Catalog),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := inbox.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start inbox watcher", zap.Error(err))
	}
	go inbox.SyncExistingFiles()

	deps := server.Dependencies{
		Ranker:     components.Ranker,
		Embeddings: components.Embeddings,
		Images:     components.Images,
		Catalog:    components.Catalog,
		Store:      components.Store,
		Watch:      inbox,
	}
	if components.Metrics != nil {
		deps.Metrics = components.Metrics
	}
	srv := server.NewServer(deps, cfg, resolvedConfigPath, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx, inbox, srv); err != nil {
		logger.Warn("Server shutdown failed", zap.Error(err))
	}
}

// shutdown stops the inbox, waiting for running ingests, before the HTTP server so nothing
// touches the components after they are closed.
func shutdown(ctx context.Context, inbox interface{ Stop() }, srv interface{ Stop(context.Context) error }) error {
	inbox.Stop()
	return srv.Stop(ctx)
}

// clientFlags are shared by every command that can talk to a server or to local storage.
type clientFlags struct {
	configPath *string
	serverURL  *string
	output     *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (for direct storage mode)"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

// open returns the backend selected by --server and the parsed output format.
func (f clientFlags) open() (backend, cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		return nil, "", err
	}
	if *f.serverURL != "" {
		return newHTTPBackend(*f.serverURL), format, nil
	}

	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create logger: %w", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize: %w", err)
	}
	return &localBackend{c: components, cfg: cfg}, format, nil
}

// reorderArgs moves flags (and their values) that appear after positional arguments to the
// front, since flag parsing stops at the first non-flag argument.
func reorderArgs(args []string) []string {
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

// joinArgs joins positional args with spaces so multi-word prompts work with or without
// shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	resp, err := b.Generate(context.Background(), joinArgs(fs.Args()))
	if err != nil {
		fail("Generate failed: %v", err)
	}
	if err := cli.WriteGenerated(os.Stdout, resp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: ruiji upload [flags] <image-file>")
		os.Exit(1)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fail("Failed to read image: %v", err)
	}

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	resp, err := b.Upload(context.Background(), data)
	if err != nil {
		fail("Upload failed: %v", err)
	}
	if err := cli.WriteUploaded(os.Stdout, resp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runImage() {
	fs := flag.NewFlagSet("image", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: ruiji image [flags] <image-id>")
		os.Exit(1)
	}

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	img, err := b.Image(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Get image failed: %v", err)
	}
	if err := cli.WriteImage(os.Stdout, img, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runEmbedding() {
	fs := flag.NewFlagSet("embedding", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: ruiji embedding [flags] <image-id>")
		os.Exit(1)
	}

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	resp, err := b.Embedding(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Get embedding failed: %v", err)
	}
	if err := cli.WriteEmbedding(os.Stdout, resp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func printSimilarUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ruiji similar --prompt <prompt> [flags] <image-id>\n")
	fmt.Fprintf(fs.Output(), "       ruiji similar --prompt <prompt> --text <query> [flags]\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Only images whose prompt equals --prompt exactly are compared. The query image needs a
stored embedding; run "ruiji embedding <image-id>" first if the search reports
query_embedding_not_found.

Examples:
  ruiji similar --prompt "a beautiful landscape" 3f2a9c1e-...
  ruiji similar --prompt uploaded --text "red sports car"
  ruiji similar --server "" --prompt "a cat" img-1      # direct storage access
`)
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	flags := addClientFlags(fs)
	prompt := fs.String("prompt", "", "scope prompt; only images generated from exactly this prompt are ranked")
	text := fs.String("text", "", "rank against a text query instead of an image")
	fs.Usage = func() { printSimilarUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if *prompt == "" || (*text == "" && fs.NArg() < 1) {
		printSimilarUsage(fs)
		os.Exit(1)
	}

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	ctx := context.Background()
	var (
		out     *models.SimilarityResponse
		queryID string
	)
	if *text != "" {
		queryID = fmt.Sprintf("text %q", *text)
		out, err = b.SimilarText(ctx, *text, *prompt)
	} else {
		queryID = fs.Arg(0)
		out, err = b.Similar(ctx, queryID, *prompt)
	}
	if err != nil {
		fail("Similarity search failed: %v", err)
	}
	if err := cli.WriteSimilarityResults(os.Stdout, queryID, *prompt, out, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])

	b, format, err := flags.open()
	if err != nil {
		fail("%v", err)
	}
	defer b.Close()

	status, err := b.Status(context.Background())
	if err != nil {
		fail("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ruiji watch <add|remove|list> [path]")
		fmt.Println("  ruiji watch add <path>     Add an inbox directory")
		fmt.Println("  ruiji watch remove <path>  Stop watching an inbox directory")
		fmt.Println("  ruiji watch list           List inbox directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: ruiji watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fail("Add failed (%d): %s", resp.StatusCode, string(b))
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: ruiji watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fail("Remove failed (%d): %s", resp.StatusCode, string(b))
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fail("List failed (%d): %s", resp.StatusCode, string(b))
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fail("Parse failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fail("Unknown watch subcommand: %s", sub)
	}
}

func printUsage() {
	fmt.Println(`ruiji - image similarity service

Usage:
  ruiji server [flags]                         Start the HTTP server
  ruiji generate [flags] [prompt]              Generate an image from a prompt
  ruiji upload [flags] <file>                  Upload an image file
  ruiji image [flags] <id>                     Show an image record and its download URL
  ruiji embedding [flags] <id>                 Get (or generate) an image embedding
  ruiji similar --prompt P [flags] <id>        Rank images sharing prompt P by similarity
  ruiji status [flags]                         Show catalog and embedding store status
  ruiji watch <add|remove|list>                Manage inbox directories
  ruiji version                                Show version
  ruiji help                                   Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ruiji/config.yaml)
  --debug            Enable debug logging

Client Flags (generate, upload, image, embedding, similar, status):
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Similar Flags:
  --prompt string    Scope prompt (required)
  --text string      Rank against a text query instead of an image

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  ruiji server
  ruiji generate a misty harbor at dawn
  ruiji upload ./photo.png
  ruiji embedding 3f2a9c1e-...
  ruiji similar --prompt "a misty harbor at dawn" 3f2a9c1e-...
  ruiji similar --server "" --output json --prompt uploaded img-1
  ruiji status --output json
  ruiji watch add ~/Pictures/inbox`)
}
