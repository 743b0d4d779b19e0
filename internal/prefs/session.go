package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// User is the signed-in instructor as stored under KeyUser.
type User struct {
	ID           int64  `json:"id"`
	InstructorID int64  `json:"instructor_id"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
}

// ViewMode is the question bank layout.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// Session gives typed access to the well-known keys.
type Session struct {
	store Store
}

// NewSession wraps a store.
func NewSession(store Store) *Session {
	return &Session{store: store}
}

// Store returns the underlying store.
func (s *Session) Store() Store {
	return s.store
}

// User returns the signed-in user. ok is false when none is stored or the
// stored value cannot be decoded.
func (s *Session) User(ctx context.Context) (User, bool) {
	v, err := s.store.Get(ctx, KeyUser)
	if err != nil {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(v), &u); err != nil {
		return User{}, false
	}
	return u, true
}

// SetUser stores the signed-in user.
func (s *Session) SetUser(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.store.Set(ctx, KeyUser, string(data))
}

// InstructorID returns the instructor id of the signed-in user, falling back
// to the user id.
func (s *Session) InstructorID(ctx context.Context) (int64, bool) {
	u, ok := s.User(ctx)
	if !ok {
		return 0, false
	}
	if u.InstructorID != 0 {
		return u.InstructorID, true
	}
	return u.ID, u.ID != 0
}

// SignOut removes the user, and any token an older release stored.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyToken); err != nil {
		return err
	}
	return s.store.Delete(ctx, KeyUser)
}

// IconPanelPinned reports whether the icon side panel is pinned open.
func (s *Session) IconPanelPinned(ctx context.Context) bool {
	v, err := s.store.Get(ctx, KeyIconPanelPinned)
	if err != nil {
		return false
	}
	pinned, _ := strconv.ParseBool(v)
	return pinned
}

// SetIconPanelPinned stores the icon panel pin state.
func (s *Session) SetIconPanelPinned(ctx context.Context, pinned bool) error {
	return s.store.Set(ctx, KeyIconPanelPinned, strconv.FormatBool(pinned))
}

// CreditBankViewMode returns the question bank layout, defaulting to grid.
func (s *Session) CreditBankViewMode(ctx context.Context) ViewMode {
	v, err := s.store.Get(ctx, KeyCreditBankViewMode)
	if err != nil {
		return ViewGrid
	}
	switch ViewMode(v) {
	case ViewGrid, ViewList:
		return ViewMode(v)
	}
	return ViewGrid
}

// SetCreditBankViewMode stores the question bank layout.
func (s *Session) SetCreditBankViewMode(ctx context.Context, mode ViewMode) error {
	if mode != ViewGrid && mode != ViewList {
		return fmt.Errorf("invalid view mode %q", mode)
	}
	return s.store.Set(ctx, KeyCreditBankViewMode, string(mode))
}
