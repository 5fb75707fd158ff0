package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/mnemosdb/mnemos/engine/domain"
)

// product names the cache-directory family used by GitRepo sources
// (§6: `$HOME/.cache/<product>/github/<repo-name>`).
const product = "mnemos"

// Loader runs §4.2's load(source) operation, streaming one Document at
// a time so the core never has to hold an entire source in memory.
type Loader struct {
	// CacheRoot overrides the git cache directory root for tests; the
	// zero value resolves it per §6 at call time.
	CacheRoot string
}

// NewLoader builds a Loader with default cache-directory resolution.
func NewLoader() *Loader { return &Loader{} }

// Load streams source's documents on the returned channel, which is
// always closed once the source is exhausted. A validation error
// (missing source kind, size-limit violation on a direct File source)
// is returned synchronously and terminates the stream before it
// starts; per-file IO errors become "bad chunks" carried in-stream.
func (l *Loader) Load(ctx context.Context, src Source) (<-chan Chunk, error) {
	switch src.Kind {
	case SourceFile:
		return l.loadFile(ctx, src.Path)
	case SourceFiles:
		return l.loadFiles(ctx, src.Glob)
	case SourceDirectory:
		return l.loadDirectory(ctx, src.Path, src.DirOpts)
	case SourceGitRepo:
		return l.loadGitRepo(ctx, src.Git)
	default:
		return nil, fmt.Errorf("ingest: unknown source kind %q", src.Kind)
	}
}

func (l *Loader) loadFile(ctx context.Context, path string) (<-chan Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is a directory, not a regular file", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", domain.ErrFileTooLarge, path, info.Size())
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		emitFile(ctx, out, path)
	}()
	return out, nil
}

func (l *Loader) loadFiles(ctx context.Context, glob string) (<-chan Chunk, error) {
	matches, err := doublestar.FilepathGlob(glob)
	if err != nil {
		return nil, fmt.Errorf("ingest: invalid glob %q: %w", glob, err)
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		for _, path := range matches {
			select {
			case <-ctx.Done():
				return
			default:
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.Size() > MaxFileSize {
				send(ctx, out, Chunk{Err: fmt.Errorf("%w: %s is %d bytes", domain.ErrFileTooLarge, path, info.Size())})
				continue
			}
			emitFile(ctx, out, path)
		}
	}()
	return out, nil
}

func (l *Loader) loadDirectory(ctx context.Context, root string, opts DirectoryOptions) (<-chan Chunk, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is not a directory", root)
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		walkDirectory(ctx, out, root, root, 0, opts)
	}()
	return out, nil
}

// walkDirectory performs the depth-first, depth-bounded, extension-
// filtered, recursive-gated traversal of §4.2's Directory source.
func walkDirectory(ctx context.Context, out chan<- Chunk, root, dir string, depth int, opts DirectoryOptions) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	if opts.MaxDepth > 0 && depth > opts.MaxDepth {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		send(ctx, out, Chunk{Err: fmt.Errorf("ingest: read dir %s: %w", dir, err)})
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if opts.Recursive {
				walkDirectory(ctx, out, root, path, depth+1, opts)
			}
			continue
		}
		if !matchesExtensions(path, opts.Extensions) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			send(ctx, out, Chunk{Err: fmt.Errorf("ingest: stat %s: %w", path, err)})
			continue
		}
		if info.Size() > MaxFileSize {
			send(ctx, out, Chunk{Err: fmt.Errorf("%w: %s is %d bytes", domain.ErrFileTooLarge, path, info.Size())})
			continue
		}
		emitFile(ctx, out, path)
	}
}

func matchesExtensions(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, want := range extensions {
		if strings.TrimPrefix(strings.ToLower(want), ".") == ext {
			return true
		}
	}
	return false
}

// loadGitRepo implements §4.2's GitRepo source: clone into (or
// fetch+fast-forward within) a per-user cache directory, then expand
// the configured glob inside it.
func (l *Loader) loadGitRepo(ctx context.Context, cfg GitRepoConfig) (<-chan Chunk, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ingest: git repo source requires a URL")
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	cacheDir, err := l.gitCacheDir(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := syncGitCache(ctx, cacheDir, cfg, branch); err != nil {
		return nil, err
	}

	glob := cfg.Glob
	if glob == "" {
		glob = "**/*"
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(cacheDir, glob))
	if err != nil {
		return nil, fmt.Errorf("ingest: invalid glob %q: %w", glob, err)
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		for _, path := range matches {
			select {
			case <-ctx.Done():
				return
			default:
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if info.Size() > MaxFileSize {
				send(ctx, out, Chunk{Err: fmt.Errorf("%w: %s is %d bytes", domain.ErrFileTooLarge, path, info.Size())})
				continue
			}
			emitFile(ctx, out, path)
		}
	}()
	return out, nil
}

// gitCacheDir resolves §6's cache directory:
// `$HOME/.cache/<product>/github/<repo-name>`, falling back to
// `/tmp/<product>/github` when there is no home directory.
func (l *Loader) gitCacheDir(repoURL string) (string, error) {
	if l.CacheRoot != "" {
		return filepath.Join(l.CacheRoot, repoName(repoURL)), nil
	}
	home, err := os.UserHomeDir()
	base := filepath.Join("/tmp", product, "github")
	if err == nil && home != "" {
		base = filepath.Join(home, ".cache", product, "github")
	}
	return filepath.Join(base, repoName(repoURL)), nil
}

func repoName(repoURL string) string {
	name := strings.TrimSuffix(repoURL, ".git")
	name = strings.TrimSuffix(name, "/")
	if idx := strings.LastIndexAny(name, "/:"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		name = "repo"
	}
	return name
}

// authURL injects cfg.AuthToken into an HTTPS remote URL, per §4.2.
func authURL(repoURL, token string) string {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return repoURL
	}
	return "https://" + token + "@" + strings.TrimPrefix(repoURL, "https://")
}

func syncGitCache(ctx context.Context, cacheDir string, cfg GitRepoConfig, branch string) error {
	auth := &http.BasicAuth{Username: "x-access-token", Password: cfg.AuthToken}

	if _, err := os.Stat(filepath.Join(cacheDir, ".git")); err == nil {
		repo, err := git.PlainOpen(cacheDir)
		if err != nil {
			return fmt.Errorf("ingest: open git cache %s: %w", cacheDir, err)
		}
		fetchOpts := &git.FetchOptions{RemoteName: "origin"}
		if cfg.AuthToken != "" {
			fetchOpts.Auth = auth
		}
		if err := repo.FetchContext(ctx, fetchOpts); err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("ingest: fetch origin: %w", err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("ingest: worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
			return fmt.Errorf("ingest: checkout %s: %w", branch, err)
		}
		if err := wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Auth: auth, Force: true}); err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("ingest: fast-forward %s: %w", branch, err)
		}
		return nil
	}

	cloneURL := authURL(cfg.URL, cfg.AuthToken)
	cloneOpts := &git.CloneOptions{
		URL:           cloneURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	}
	if cfg.AuthToken != "" {
		cloneOpts.Auth = auth
	}
	if _, err := git.PlainCloneContext(ctx, cacheDir, false, cloneOpts); err != nil {
		return fmt.Errorf("ingest: clone %s: %w", cfg.URL, err)
	}
	return nil
}

func emitFile(ctx context.Context, out chan<- Chunk, path string) {
	mediaType, err := detectMediaType(path)
	if err != nil {
		send(ctx, out, Chunk{Err: fmt.Errorf("ingest: detect media type %s: %w", path, err)})
		return
	}
	doc, warning, err := readDocument(path, mediaType)
	if err != nil {
		send(ctx, out, Chunk{Err: fmt.Errorf("ingest: read %s: %w", path, err)})
		return
	}
	send(ctx, out, Chunk{Doc: doc, Warning: warning})
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}
