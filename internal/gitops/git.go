// Package gitops wraps the git commands used for snapshots and recovery.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned when the directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Repo runs git commands in a working directory.
type Repo struct {
	Path string // Empty means the current directory
}

// New returns a Repo rooted at path.
func New(path string) *Repo {
	return &Repo{Path: path}
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Path
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w (output: %s)", args[0], err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// IsRepo reports whether Path is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// HeadCommit returns the full hash of HEAD.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	if !r.IsRepo(ctx) {
		return "", ErrNotRepository
	}
	return r.git(ctx, "rev-parse", "HEAD")
}

// StatusEntry is one line of `git status --porcelain`.
type StatusEntry struct {
	Code string // two-character XY status, e.g. "??" or " M"
	Path string
}

// Status returns the porcelain status of the work tree.
func (r *Repo) Status(ctx context.Context) ([]StatusEntry, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	var entries []StatusEntry
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// XY filename
		if len(line) > 3 {
			entries = append(entries, StatusEntry{Code: line[:2], Path: line[3:]})
		} else {
			entries = append(entries, StatusEntry{Path: strings.TrimSpace(line)})
		}
	}
	return entries, nil
}

// CreateTag creates an annotated tag at HEAD.
func (r *Repo) CreateTag(ctx context.Context, name, message string) error {
	if !r.IsRepo(ctx) {
		return ErrNotRepository
	}
	_, err := r.git(ctx, "tag", "-a", name, "-m", message)
	return err
}

// ListTags returns tags matching a glob pattern, newest first.
func (r *Repo) ListTags(ctx context.Context, pattern string) ([]string, error) {
	out, err := r.git(ctx, "tag", "--list", "--sort=-creatordate", pattern)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
