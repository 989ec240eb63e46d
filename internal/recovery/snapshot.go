package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotTagPrefix starts the name of every snapshot tag.
const SnapshotTagPrefix = "autopilot-snapshot-"

// CreateGitSnapshot tags HEAD before risky work and returns the tag name.
// It returns "" on any failure, including a directory that is not a git
// repository.
func (p *Planner) CreateGitSnapshot(ctx context.Context, description string) string {
	name := fmt.Sprintf("%s%s-%s", SnapshotTagPrefix, time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
	if description == "" {
		description = "autopilot snapshot"
	}

	head, err := p.repo.HeadCommit(ctx)
	if err != nil {
		p.logger.Warn("git snapshot failed", "error", err)
		return ""
	}
	if err := p.repo.CreateTag(ctx, name, description); err != nil {
		p.logger.Warn("git snapshot failed", "error", err)
		return ""
	}

	// The tag pins HEAD only; uncommitted edits are not part of the snapshot.
	attrs := []any{"tag", name, "commit", head}
	if entries, err := p.repo.Status(ctx); err == nil && len(entries) > 0 {
		attrs = append(attrs, "uncommitted_files", len(entries))
	}
	p.logger.Info("git snapshot created", attrs...)
	return name
}

// Snapshots lists snapshot tags, newest first.
func (p *Planner) Snapshots(ctx context.Context) ([]string, error) {
	return p.repo.ListTags(ctx, SnapshotTagPrefix+"*")
}
