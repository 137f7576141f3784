package memdir

// Package memdir provides the in-memory user directory. Entries live for the
// process lifetime; there is no persistence by design.

import (
	"context"
	"maps"
	"sync"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	apperrors "github.com/flagops/flaggate/internal/errors"
	"github.com/flagops/flaggate/internal/ports"
)

// Directory is a mutex-guarded map keyed by subject identifier. The single
// lock makes FindOrCreate an atomic check-and-insert, so concurrent first
// logins of the same subject cannot create duplicates.
type Directory struct {
	mu      sync.Mutex
	entries map[string]domainauth.DirectoryEntry
	now     func() time.Time
}

var _ ports.UserDirectory = (*Directory)(nil)

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		entries: make(map[string]domainauth.DirectoryEntry),
		now:     time.Now,
	}
}

// FindOrCreate returns the entry for the profile's subject, creating it on
// first sight. On repeat login the cached display name, email, and raw
// claims are refreshed from the just-validated profile; CreatedAt is
// preserved. A profile without a subject identifier is rejected, though the
// service layer screens those out before reaching the directory.
func (d *Directory) FindOrCreate(_ context.Context, profile domainauth.Profile) (domainauth.DirectoryEntry, bool, error) {
	if profile.SubjectID == "" {
		return domainauth.DirectoryEntry{}, false, apperrors.MissingSubject("profile has no subject identifier")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if existing, ok := d.entries[profile.SubjectID]; ok {
		existing.DisplayName = profile.DisplayName
		existing.Email = profile.Email
		existing.RawClaims = cloneClaims(profile.RawClaims)
		existing.LastLoginAt = now
		d.entries[profile.SubjectID] = existing
		return existing, false, nil
	}

	entry := domainauth.DirectoryEntry{
		SubjectID:   profile.SubjectID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		RawClaims:   cloneClaims(profile.RawClaims),
		CreatedAt:   now,
		LastLoginAt: now,
	}
	d.entries[profile.SubjectID] = entry
	return entry, true, nil
}

// Len reports the number of registered subjects.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func cloneClaims(claims map[string]any) map[string]any {
	if claims == nil {
		return nil
	}
	cp := make(map[string]any, len(claims))
	maps.Copy(cp, claims)
	return cp
}
