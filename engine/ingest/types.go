// Package ingest is the context-ingestion pipeline (§4.2): it turns a
// File/Files/Directory/GitRepo source into a deduplicated stream of
// domain.Document values the coordinator feeds into add_memory.
package ingest

import "github.com/mnemosdb/mnemos/engine/domain"

// SourceKind names one branch of the Source tagged variant.
type SourceKind string

const (
	SourceFile      SourceKind = "file"
	SourceFiles     SourceKind = "files"
	SourceDirectory SourceKind = "directory"
	SourceGitRepo   SourceKind = "git_repo"
)

// DirectoryOptions configures a Directory source's traversal.
type DirectoryOptions struct {
	Recursive  bool
	Extensions []string // lowercase, no leading dot; empty means "no filter"
	MaxDepth   int       // 0 means unbounded
}

// GitRepoConfig configures a GitRepo source.
type GitRepoConfig struct {
	URL       string
	Branch    string
	Glob      string
	AuthToken string // injected into the clone URL for HTTPS remotes
}

// Source is the tagged variant §4.2 names: File(path), Files(glob),
// Directory(path, opts), GitRepo(cfg).
type Source struct {
	Kind SourceKind

	Path string // SourceFile, SourceDirectory
	Glob string // SourceFiles

	DirOpts DirectoryOptions // SourceDirectory
	Git     GitRepoConfig    // SourceGitRepo
}

// NewFileSource builds a single-file source.
func NewFileSource(path string) Source {
	return Source{Kind: SourceFile, Path: path}
}

// NewFilesSource builds a glob-expansion source.
func NewFilesSource(glob string) Source {
	return Source{Kind: SourceFiles, Glob: glob}
}

// NewDirectorySource builds a directory-traversal source.
func NewDirectorySource(path string, opts DirectoryOptions) Source {
	return Source{Kind: SourceDirectory, Path: path, DirOpts: opts}
}

// NewGitRepoSource builds a git-repository source.
func NewGitRepoSource(cfg GitRepoConfig) Source {
	return Source{Kind: SourceGitRepo, Git: cfg}
}

// Chunk is one element of the stream Load produces. A non-nil Err with
// a zero Doc is a "bad chunk" (§4.2: IO errors are carried in-stream,
// never panicked); the stream continues after one. Validation errors
// are returned synchronously from Load instead and terminate the
// stream before it starts.
type Chunk struct {
	Doc     domain.Document
	Warning string // non-fatal, e.g. "invalid utf-8, fell back to base64 for <path>"
	Err     error
}
