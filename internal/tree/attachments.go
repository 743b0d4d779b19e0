package tree

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
)

// AttachmentPanel lists the files of one big lesson. After a change it
// refetches its own list and then the whole tree.
type AttachmentPanel struct {
	parent *BigLessonPanel
	scope  *scope.Scope

	mu     sync.RWMutex
	files  []lms.Attachment
	loaded bool
}

func newAttachmentPanel(parent *BigLessonPanel) *AttachmentPanel {
	return &AttachmentPanel{
		parent: parent,
		scope:  scope.New(),
	}
}

func (p *AttachmentPanel) close() {
	p.scope.Close()
}

// Key is the collapse-state node key.
func (p *AttachmentPanel) Key() string {
	return collapse.AttachmentKey(p.parent.ID())
}

// Expanded reports whether the full file list is shown.
func (p *AttachmentPanel) Expanded() bool {
	return p.parent.tree.state.Get(p.Key(), collapse.Expanded)
}

// Toggle flips between the short and the full file list.
func (p *AttachmentPanel) Toggle() bool {
	return collapse.Toggle(p.parent.tree.state, p.Key(), collapse.Expanded)
}

// Files returns the list as last fetched.
func (p *AttachmentPanel) Files() []lms.Attachment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.files)
}

// Loaded reports whether the list has been fetched.
func (p *AttachmentPanel) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Load fetches the file list.
func (p *AttachmentPanel) Load(ctx context.Context) error {
	ctx, release, err := p.scope.Begin(ctx, "load")
	if err != nil {
		return err
	}
	defer release()
	return p.fetch(ctx)
}

func (p *AttachmentPanel) fetch(ctx context.Context) error {
	files, err := p.parent.tree.cfg.API.ListAttachments(ctx, p.parent.ID())
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	if !p.scope.Alive() {
		return scope.ErrClosed
	}
	p.mu.Lock()
	p.files = files
	p.loaded = true
	p.mu.Unlock()
	return nil
}

func (p *AttachmentPanel) refresh(ctx context.Context) error {
	if err := p.fetch(ctx); err != nil {
		return err
	}
	return p.parent.tree.Refresh(ctx)
}

// Upload sends one file.
func (p *AttachmentPanel) Upload(ctx context.Context, filename string, r io.Reader) error {
	name := filepath.Base(cleanText(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return &FieldError{Field: "file", Reason: "a file name is required"}
	}

	bigLessonID := p.parent.ID()
	var uploaded *lms.Attachment
	return p.parent.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "upload",
		failure: "Failed to upload file",
		success: fmt.Sprintf("File %q uploaded", name),
		do: func(ctx context.Context) error {
			var err error
			uploaded, err = p.parent.tree.cfg.API.UploadAttachment(ctx, bigLessonID, name, r)
			return err
		},
		refresh: p.refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.AttachmentAdded, Data: map[string]any{
				"big_lesson_id": bigLessonID,
				"attachment_id": uploaded.ID,
				"title":         name,
			}}
		},
	})
}

// Delete removes one file after confirmation.
func (p *AttachmentPanel) Delete(ctx context.Context, attachmentID int64) error {
	title := fmt.Sprintf("#%d", attachmentID)
	for _, f := range p.Files() {
		if f.ID == attachmentID {
			title = f.Title
		}
	}
	if err := p.parent.tree.confirm(ctx, fmt.Sprintf("Delete file %q?", title)); err != nil {
		return err
	}

	bigLessonID := p.parent.ID()
	return p.parent.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "delete",
		failure: "Failed to delete file",
		success: "File deleted",
		do: func(ctx context.Context) error {
			return p.parent.tree.cfg.API.DeleteAttachment(ctx, bigLessonID, attachmentID)
		},
		refresh: p.refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.AttachmentDeleted, Data: map[string]any{
				"big_lesson_id": bigLessonID,
				"attachment_id": attachmentID,
			}}
		},
	})
}
