// Package files stores onboarding attachments on local disk, one
// directory per user, with generated names so uploads never clobber
// each other.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"enroll/internal/onboarding/engine"
)

// Store saves attachments under a base upload directory.
type Store struct {
	baseDir string
}

// New constructs a Store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Save writes the attachment to <baseDir>/<userID>/<uuid><ext> and
// returns the stored path. The original filename contributes only its
// extension; the rest is untrusted input.
func (s *Store) Save(ctx context.Context, userID string, att engine.Attachment) (string, error) {
	dir := filepath.Join(s.baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + filepath.Ext(att.Filename())
	path := filepath.Join(dir, name)
	if err := att.Save(ctx, path); err != nil {
		return "", fmt.Errorf("save attachment: %w", err)
	}
	return path, nil
}
