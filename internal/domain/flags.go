package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// FlagName identifies a per-user feature toggle.
type FlagName string

const (
	FlagUploadMealImage FlagName = "uploadMealImage"
	FlagAIAnalysis      FlagName = "aiAnalysis"
	FlagDataUpload      FlagName = "dataUpload"
)

// KnownFlags is the closed set of flag names the gate accepts.
var KnownFlags = []FlagName{FlagUploadMealImage, FlagAIAnalysis, FlagDataUpload}

// IsKnownFlag reports whether name belongs to KnownFlags.
func IsKnownFlag(name FlagName) bool {
	for _, known := range KnownFlags {
		if known == name {
			return true
		}
	}
	return false
}

// FlagStore persists per-user flags.
type FlagStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	// MergeFeatureFlags applies flags on top of the stored map in a single write and returns
	// the updated user, or nil when the user does not exist.
	MergeFeatureFlags(ctx context.Context, userID string, flags map[FlagName]bool) (*User, error)
}

// Gate answers whether a user may use a gated capability.
type Gate struct {
	store    FlagStore
	defaults map[FlagName]bool
}

// NewGate constructs a Gate. defaults applies to flags a user has never had set; flags absent
// from defaults resolve to false. Unknown names in defaults are rejected.
func NewGate(store FlagStore, defaults map[string]bool) (*Gate, error) {
	resolved := make(map[FlagName]bool, len(defaults))
	var unknown []string
	for name, enabled := range defaults {
		flag := FlagName(name)
		if !IsKnownFlag(flag) {
			unknown = append(unknown, name)
			continue
		}
		resolved[flag] = enabled
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, validationError("unknown feature flags in defaults: %s", strings.Join(unknown, ", "))
	}
	return &Gate{store: store, defaults: resolved}, nil
}

// IsEnabled returns the user's value for flag, falling back to the configured default.
func (g *Gate) IsEnabled(user *User, flag FlagName) bool {
	if user == nil {
		return false
	}
	if enabled, ok := user.FeatureFlags[flag]; ok {
		return enabled
	}
	return g.defaults[flag]
}

// Resolve returns every known flag for user with defaults filled in.
func (g *Gate) Resolve(user *User) map[FlagName]bool {
	out := make(map[FlagName]bool, len(KnownFlags))
	for _, flag := range KnownFlags {
		out[flag] = g.IsEnabled(user, flag)
	}
	return out
}

// Flags loads the user and resolves all known flags.
func (g *Gate) Flags(ctx context.Context, userID string) (map[FlagName]bool, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return g.Resolve(user), nil
}

// SetFlags merges partial into the user's stored flags. Keys not supplied keep their value.
func (g *Gate) SetFlags(ctx context.Context, userID string, partial map[string]bool) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user id is required")
	}
	if len(partial) == 0 {
		return nil, validationError("at least one feature flag is required")
	}

	update := make(map[FlagName]bool, len(partial))
	var unknown []string
	for name, enabled := range partial {
		flag := FlagName(name)
		if !IsKnownFlag(flag) {
			unknown = append(unknown, name)
			continue
		}
		update[flag] = enabled
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, validationError("unknown feature flags: %s", strings.Join(unknown, ", "))
	}

	user, err := g.store.MergeFeatureFlags(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// Require loads userID and fails unless flag is enabled for them.
func (g *Gate) Require(ctx context.Context, userID string, flag FlagName) (*User, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !g.IsEnabled(user, flag) {
		return nil, fmt.Errorf("%w: feature %s is disabled", ErrPermissionDenied, flag)
	}
	return user, nil
}
