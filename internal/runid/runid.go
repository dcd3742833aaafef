// Package runid validates the three-segment run identifier
// (org/project/uuid) and guards every derived filesystem path against
// traversal out of the configured base directory.
package runid

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	kerrors "github.com/harunnryd/kiroku/internal/errors"
)

var (
	// org and project: lowercase alphanumeric with inner "_" or "-",
	// or a single alphanumeric character.
	segmentRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

	// uuid: canonical dashed 8-4-4-4-12, lowercase hex only.
	uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// RunID is a parsed, validated run identifier.
type RunID struct {
	Org     string
	Project string
	UUID    string
}

// String returns the canonical org/project/uuid form.
func (r RunID) String() string {
	return r.Org + "/" + r.Project + "/" + r.UUID
}

// Validator validates run identifiers against a fixed base directory.
// The zero value is unusable; construct with NewValidator.
type Validator struct {
	baseDir string
}

// NewValidator creates a validator rooted at baseDir. The base is
// cleaned and made absolute once so every later check is pure path
// arithmetic with no filesystem calls.
func NewValidator(baseDir string) (*Validator, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("base directory is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(trimmed))
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &Validator{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory the validator guards.
func (v *Validator) BaseDir() string {
	return v.baseDir
}

// Parse validates the three-segment grammar and returns the parsed id.
// It performs no I/O and fails closed on any deviation.
func (v *Validator) Parse(id string) (RunID, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return RunID{}, kerrors.Validation(fmt.Sprintf("run id %q must have exactly three segments", id))
	}

	org, project, uid := parts[0], parts[1], parts[2]
	if !segmentRe.MatchString(org) {
		return RunID{}, kerrors.Validation(fmt.Sprintf("invalid org segment %q", org))
	}
	if !segmentRe.MatchString(project) {
		return RunID{}, kerrors.Validation(fmt.Sprintf("invalid project segment %q", project))
	}
	if len(uid) != 36 || !uuidRe.MatchString(uid) {
		return RunID{}, kerrors.Validation(fmt.Sprintf("invalid uuid segment %q", uid))
	}
	if _, err := uuid.Parse(uid); err != nil {
		return RunID{}, kerrors.Validation(fmt.Sprintf("invalid uuid segment %q: %v", uid, err))
	}

	return RunID{Org: org, Project: project, UUID: uid}, nil
}

// ResolvePath parses the id and resolves it under the base directory,
// requiring the canonical result to stay strictly inside the base.
func (v *Validator) ResolvePath(id string) (RunID, string, error) {
	rid, err := v.Parse(id)
	if err != nil {
		return RunID{}, "", err
	}

	resolved := filepath.Clean(filepath.Join(v.baseDir, rid.Org, rid.Project, rid.UUID))
	if !strings.HasPrefix(resolved, v.baseDir+string(filepath.Separator)) {
		return RunID{}, "", kerrors.Validation(fmt.Sprintf("run id %q escapes the base directory", id))
	}

	return rid, resolved, nil
}

// ValidSegment reports whether s is a valid org or project segment.
// Used when walking untrusted directory or object listings.
func ValidSegment(s string) bool {
	return segmentRe.MatchString(s)
}

// ValidUUID reports whether s is a canonical lowercase dashed uuid.
func ValidUUID(s string) bool {
	return len(s) == 36 && uuidRe.MatchString(s)
}
