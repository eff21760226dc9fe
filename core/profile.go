package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// UserProfile is the single merge-only record kept per user: stable
// preferences, hard constraints and known facts that persist across sessions.
type UserProfile struct {
	UserID      string            `json:"user_id"`
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences"`
	Constraints []string          `json:"constraints"`
	Facts       []string          `json:"facts"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewUserProfile creates an empty profile for userID.
func NewUserProfile(userID string) *UserProfile {
	now := time.Now()
	return &UserProfile{
		UserID:      userID,
		Preferences: map[string]string{},
		Constraints: []string{},
		Facts:       []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsEmpty reports whether the profile carries any learned information.
func (p *UserProfile) IsEmpty() bool {
	return p.Name == "" && len(p.Preferences) == 0 && len(p.Constraints) == 0 && len(p.Facts) == 0
}

// Render formats the profile as plain text for inclusion in a model context.
// Empty profiles render to the empty string. Preference keys are sorted so
// output is stable.
func (p *UserProfile) Render() string {
	if p.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	if p.Name != "" {
		sb.WriteString("Name: " + p.Name + "\n")
	}
	if len(p.Preferences) > 0 {
		keys := make([]string, 0, len(p.Preferences))
		for k := range p.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Preferences:\n")
		for _, k := range keys {
			sb.WriteString("- " + k + ": " + p.Preferences[k] + "\n")
		}
	}
	if len(p.Constraints) > 0 {
		sb.WriteString("Constraints:\n")
		for _, c := range p.Constraints {
			sb.WriteString("- " + c + "\n")
		}
	}
	if len(p.Facts) > 0 {
		sb.WriteString("Facts:\n")
		for _, f := range p.Facts {
			sb.WriteString("- " + f + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Clone returns a deep copy safe for independent mutation.
func (p *UserProfile) Clone() *UserProfile {
	clone := *p
	clone.Preferences = make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		clone.Preferences[k] = v
	}
	clone.Constraints = append([]string(nil), p.Constraints...)
	clone.Facts = append([]string(nil), p.Facts...)
	return &clone
}

// ProfileUpdate is a set of merge operations against a profile. Zero-valued
// fields are no-ops, so partial updates compose naturally.
type ProfileUpdate struct {
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Constraints []string          `json:"constraints,omitempty"`
	Facts       []string          `json:"facts,omitempty"`
}

// IsEmpty reports whether the update carries no operations.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == "" && len(u.Preferences) == 0 && len(u.Constraints) == 0 && len(u.Facts) == 0
}

// Merge applies the update in place. Preference keys are overwritten by newer
// values; constraints and facts are set-unioned with near-duplicate folding.
func (p *UserProfile) Merge(u ProfileUpdate) {
	if u.Name != "" {
		p.Name = u.Name
	}
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	for k, v := range u.Preferences {
		p.Preferences[k] = v
	}
	p.Constraints = mergeUnique(p.Constraints, u.Constraints)
	p.Facts = mergeUnique(p.Facts, u.Facts)
	p.UpdatedAt = time.Now()
}

// mergeUnique unions new items into existing, folding near-duplicates. Items
// equal after normalization are dropped; when one item is a substring of the
// other, the longer (more detailed) version wins.
func mergeUnique(existing, items []string) []string {
	result := append([]string(nil), existing...)
next:
	for _, item := range items {
		norm := strings.ToLower(strings.TrimSpace(item))
		if norm == "" {
			continue
		}
		for i, old := range result {
			oldNorm := strings.ToLower(strings.TrimSpace(old))
			if norm == oldNorm || strings.Contains(oldNorm, norm) {
				continue next
			}
			if strings.Contains(norm, oldNorm) {
				result[i] = item
				continue next
			}
		}
		result = append(result, item)
	}
	return result
}

// ProfileStore persists one profile per user. Lookups never fail on unknown
// users: an empty profile is created lazily on first access. Merges are
// atomic per user.
type ProfileStore interface {
	// Get returns the user's profile, creating an empty one if absent.
	Get(ctx context.Context, userID string) (*UserProfile, error)

	// Merge applies the update atomically and returns the merged profile.
	Merge(ctx context.Context, userID string, update ProfileUpdate) (*UserProfile, error)

	// Reset clears the profile back to empty.
	Reset(ctx context.Context, userID string) error
}
