// Command mnemos-ingest drains a context-ingestion source through the
// coordinator, turning files, globs, directories, and git repos into
// committed memories.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mnemosdb/mnemos/engine/committee"
	"github.com/mnemosdb/mnemos/engine/coordinator"
	"github.com/mnemosdb/mnemos/engine/domain"
	"github.com/mnemosdb/mnemos/engine/ingest"
	"github.com/mnemosdb/mnemos/engine/quantum"
	"github.com/mnemosdb/mnemos/engine/queue"
	"github.com/mnemosdb/mnemos/engine/store"
	"github.com/mnemosdb/mnemos/pkg/llmadapter"
	"github.com/mnemosdb/mnemos/pkg/metrics"
)

var met = metrics.New()

var (
	mDocsIngested = met.Counter("mnemos_ingest_docs_total", "Total documents committed as memories")
	mDocsSkipped  = met.Counter("mnemos_ingest_docs_skipped_total", "Documents skipped after an error")
	mErrorsTotal  = met.Counter("mnemos_ingest_errors_total", "Total ingestion errors")
)

func main() {
	var (
		kind       = flag.String("kind", "file", "source kind: file, files, directory, git")
		path       = flag.String("path", "", "file or directory path (kind=file|directory)")
		glob       = flag.String("glob", "", "glob pattern (kind=files)")
		recursive  = flag.Bool("recursive", true, "recurse into subdirectories (kind=directory)")
		extensions = flag.String("extensions", "", "comma-separated, no-dot extensions to include (kind=directory)")
		maxDepth   = flag.Int("max-depth", 0, "max recursion depth, 0 is unbounded (kind=directory)")

		gitURL    = flag.String("git-url", "", "git remote URL (kind=git)")
		gitBranch = flag.String("git-branch", "main", "git branch (kind=git)")
		gitGlob   = flag.String("git-glob", "", "glob within the checkout (kind=git)")
		gitToken  = flag.String("git-token", "", "auth token injected into the clone URL (kind=git)")

		neo4jURL   = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "mnemos", "Qdrant collection name")

		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("embed-model", "nomic-embed-text", "Ollama embedding model")

		metricsPort = flag.Int("metrics-port", 9092, "metrics HTTP port, 0 disables")
		importance  = flag.Float64("importance", 0.5, "initial importance for ingested memories")
	)
	flag.Parse()

	if *metricsPort > 0 {
		met.ServeAsync(*metricsPort)
	}

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(*kind, *path, *glob, *recursive, *extensions, *maxDepth, *gitURL, *gitBranch, *gitGlob, *gitToken)
	if err != nil {
		log.Error("invalid source configuration", "error", err)
		os.Exit(1)
	}

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)

	vectorIndex, err := store.NewQdrantIndex(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	memStore := store.New(driver, vectorIndex)

	ollamaClient := llmadapter.NewOllamaClient(*ollamaURL, *embedModel, "", nil)

	backend := committee.NewMultiBackend("", "", ollamaClient)
	committeeEval, err := committee.NewEvaluator(committee.Config{
		Models:                   []committee.ModelType{committee.ModelOllamaLocal},
		TimeoutMs:                30000,
		ConsensusThreshold:       0.5,
		MaxConcurrentEvaluations: 2,
		QualityThreshold:         0.5,
	}, backend)
	if err != nil {
		log.Error("committee evaluator failed", "error", err)
		os.Exit(1)
	}

	quantumState := quantum.New(1.0)
	quantumRouter := quantum.NewRouter(quantumState, nil)
	taskQueue := queue.New()

	coord := coordinator.New(memStore, ollamaClient, taskQueue, quantumRouter, quantumState, committeeEval, coordinator.Config{}, log)

	var nc *nats.Conn
	pool := queue.NewPool(taskQueue, coord.Handler, 2, nc, log)
	pool.Start(ctx)

	loader := ingest.NewLoader()
	chunks, err := loader.Load(ctx, src)
	if err != nil {
		log.Error("load failed", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	meta := domain.NewMetadata(float32(*importance), nil, []string{"ingested"}, sourceLabel(*kind))

	for chunk := range chunks {
		if chunk.Err != nil {
			mErrorsTotal.Inc()
			mDocsSkipped.Inc()
			log.Warn("ingest: chunk failed", "error", chunk.Err)
			continue
		}
		if chunk.Warning != "" {
			log.Warn("ingest: chunk warning", "warning", chunk.Warning, "doc_id", chunk.Doc.ID)
		}

		node, err := coord.AddMemory(ctx, chunk.Doc.Data, domain.MemoryTypeSemantic, meta)
		if err != nil {
			mErrorsTotal.Inc()
			mDocsSkipped.Inc()
			log.Warn("ingest: add memory failed", "error", err, "doc_id", chunk.Doc.ID)
			continue
		}
		mDocsIngested.Inc()
		log.Info("ingest: memory committed", "memory_id", node.ID, "doc_id", chunk.Doc.ID)
	}

	coord.Shutdown()
	pool.Wait()

	log.Info("ingest complete",
		"docs_ingested", mDocsIngested.Value(),
		"docs_skipped", mDocsSkipped.Value(),
		"errors", mErrorsTotal.Value(),
		"elapsed", time.Since(start),
	)
}

func sourceLabel(kind string) string {
	return "ingest:" + kind
}

func buildSource(kind, path, glob string, recursive bool, extensionsCSV string, maxDepth int, gitURL, gitBranch, gitGlob, gitToken string) (ingest.Source, error) {
	switch kind {
	case "file":
		if path == "" {
			return ingest.Source{}, fmt.Errorf("mnemos-ingest: -path is required for kind=file")
		}
		return ingest.NewFileSource(path), nil
	case "files":
		if glob == "" {
			return ingest.Source{}, fmt.Errorf("mnemos-ingest: -glob is required for kind=files")
		}
		return ingest.NewFilesSource(glob), nil
	case "directory":
		if path == "" {
			return ingest.Source{}, fmt.Errorf("mnemos-ingest: -path is required for kind=directory")
		}
		var extensions []string
		if extensionsCSV != "" {
			extensions = strings.Split(extensionsCSV, ",")
		}
		return ingest.NewDirectorySource(path, ingest.DirectoryOptions{
			Recursive:  recursive,
			Extensions: extensions,
			MaxDepth:   maxDepth,
		}), nil
	case "git":
		if gitURL == "" {
			return ingest.Source{}, fmt.Errorf("mnemos-ingest: -git-url is required for kind=git")
		}
		return ingest.NewGitRepoSource(ingest.GitRepoConfig{
			URL:       gitURL,
			Branch:    gitBranch,
			Glob:      gitGlob,
			AuthToken: gitToken,
		}), nil
	default:
		return ingest.Source{}, fmt.Errorf("mnemos-ingest: unknown -kind %q (want file, files, directory, or git)", kind)
	}
}
