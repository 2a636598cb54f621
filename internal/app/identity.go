package app

import (
	"context"
	"strings"
	"time"

	"converseiq-service/internal/domain"
)

// IdentityResolver maps an optional user descriptor to a persisted user.
type IdentityResolver struct {
	newID func() string
	now   func() time.Time
}

// NewIdentityResolver builds a resolver using the given id source and clock.
func NewIdentityResolver(newID func() string, now func() time.Time) *IdentityResolver {
	return &IdentityResolver{newID: newID, now: now}
}

// ResolveUserID returns the user id for d, creating the user when needed.
// A nil result means the session is anonymous.
//
// An explicit user id must already exist. Otherwise the email is used as the
// upsert key; a stored display name is only ever filled in, never replaced.
// A display name alone always creates a fresh user.
func (r *IdentityResolver) ResolveUserID(ctx context.Context, users UserStore, d *domain.UserDescriptor) (*string, error) {
	if d == nil {
		return nil, nil
	}
	// Whitespace-only fields count as absent; anything else is used as given.
	userID := present(d.UserID)
	email := present(d.Email)
	displayName := present(d.DisplayName)

	if userID != "" {
		user, err := users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &user.ID, nil
	}

	if email != "" {
		existing, ok, err := users.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if ok {
			if displayName != "" && (existing.DisplayName == nil || *existing.DisplayName == "") {
				if err := users.SetUserDisplayName(ctx, existing.ID, displayName); err != nil {
					return nil, err
				}
			}
			return &existing.ID, nil
		}
		return r.create(ctx, users, &email, optional(displayName))
	}

	if displayName != "" {
		return r.create(ctx, users, nil, &displayName)
	}
	return nil, nil
}

func (r *IdentityResolver) create(ctx context.Context, users UserStore, email, displayName *string) (*string, error) {
	user := domain.User{
		ID:          r.newID(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   r.now(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user.ID, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func present(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
