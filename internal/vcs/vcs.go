// Package vcs probes a git working tree for the commit-hash diffing
// that drives incremental reindexing: the current HEAD, files changed
// since a baseline, untracked files, and per-file blob hashes. Failures
// are returned as internal/errors values whose kind GetKind reads: a
// timed-out git invocation is a timeout, any other failure (a missing
// git binary included) is a failed command, and HeadCommit reports
// every failure as not-a-repository. A missing git binary is not told
// apart from a directory outside a repository.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 30 * time.Second

// DefaultMaxOutputBytes bounds the buffered stdout of a single git
// invocation, guarding against a runaway diff on a pathological
// repository.
const DefaultMaxOutputBytes = 200 * 1024 * 1024 // 200 MiB

// Probe runs git commands against a single working tree. It never
// shells out via a string template — every invocation uses an explicit
// argument vector.
type Probe struct {
	dir            string
	timeout        time.Duration
	maxOutputBytes int64
}

// Option configures a Probe.
type Option func(*Probe)

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) { p.timeout = d }
}

// WithMaxOutputBytes overrides the buffered-output ceiling.
func WithMaxOutputBytes(n int64) Option {
	return func(p *Probe) { p.maxOutputBytes = n }
}

// New creates a Probe rooted at dir.
func New(dir string, opts ...Option) *Probe {
	p := &Probe{
		dir:            dir,
		timeout:        DefaultTimeout,
		maxOutputBytes: DefaultMaxOutputBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run executes a git subcommand with the given args, bounding both time
// and output size, and classifies the failure.
func (p *Probe) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: p.maxOutputBytes}
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", amerrors.TimeoutErr(fmt.Sprintf("git %s", strings.Join(args, " ")), p.timeout.String())
	}
	if err != nil {
		return "", amerrors.CommandFailed(fmt.Sprintf("git %s", strings.Join(args, " ")), stderr.String(), err)
	}
	return stdout.String(), nil
}

// limitedWriter caps the number of bytes written before silently
// discarding the remainder, bounding memory use for pathological diffs
// without failing the command outright.
type limitedWriter struct {
	w      io.Writer
	max    int64
	written int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.written >= l.max {
		return len(p), nil
	}
	remaining := l.max - l.written
	if int64(len(p)) > remaining {
		n, err := l.w.Write(p[:remaining])
		l.written += int64(n)
		return len(p), err
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}

// IsRepository reports whether dir is inside a git working tree.
func (p *Probe) IsRepository(ctx context.Context) bool {
	_, err := p.run(ctx, "rev-parse", "HEAD")
	return err == nil
}

// HeadCommit returns the current HEAD commit hash.
func (p *Probe) HeadCommit(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", amerrors.NotARepository("not a git repository")
	}
	return strings.TrimSpace(out), nil
}

// CommitExists reports whether hash resolves to a commit in this
// repository.
func (p *Probe) CommitExists(ctx context.Context, hash string) bool {
	if len(hash) < 7 {
		return false
	}
	_, err := p.run(ctx, "cat-file", "-e", hash+"^{commit}")
	return err == nil
}

// ChangedFiles returns the union of files changed since hash (committed
// diff), staged files, and unstaged files, deduplicated.
func (p *Probe) ChangedFiles(ctx context.Context, hash string) ([]string, error) {
	if len(hash) < 7 {
		return nil, amerrors.InvalidHash(hash)
	}
	if !p.CommitExists(ctx, hash) {
		return nil, amerrors.InvalidHash(hash)
	}

	seen := make(map[string]struct{})
	var out []string
	collect := func(args ...string) error {
		text, err := p.run(ctx, args...)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			out = append(out, line)
		}
		return nil
	}

	if err := collect("diff", "--name-only", hash, "HEAD"); err != nil {
		return nil, err
	}
	if err := collect("diff", "--name-only"); err != nil {
		return nil, err
	}
	if err := collect("diff", "--name-only", "--cached"); err != nil {
		return nil, err
	}

	return out, nil
}

// UntrackedFiles returns paths not tracked by git and not excluded by
// .gitignore.
func (p *Probe) UntrackedFiles(ctx context.Context) ([]string, error) {
	text, err := p.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// BlobHash returns the most recent commit hash that touched path, used
// as a per-file content fingerprint for cache lookups and
// needs_reindex checks. Returns "" if path has never been committed
// (e.g. a new untracked file).
func (p *Probe) BlobHash(ctx context.Context, path string) (string, error) {
	text, err := p.run(ctx, "log", "-1", "--format=%H", "--", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
