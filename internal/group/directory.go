package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/conversation"
)

// Store persists groups. Lookups of a missing group return nil without an
// error. Membership mutations must not lose concurrent updates.
type Store interface {
	Insert(ctx context.Context, g *Group) error
	Get(ctx context.Context, id string) (*Group, error)
	AddMember(ctx context.Context, id, username string) (*Group, error)
	RemoveMember(ctx context.Context, id, username string) (*Group, error)
	ListForUser(ctx context.Context, usernameLower string) ([]*Group, error)
}

// Directory owns group entities and is their only mutator.
type Directory struct {
	store Store
	now   func() time.Time
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store, now: time.Now}
}

// Create makes a group whose sole member and admin is the creator.
func (d *Directory) Create(ctx context.Context, name, creator string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.InvalidArgument, "name is required")
	}
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, apperr.New(apperr.InvalidArgument, "creator is required")
	}

	lower := conversation.Fold(creator)
	g := &Group{
		ID:           ulid.Make().String(),
		Name:         name,
		Members:      []string{creator},
		MembersLower: []string{lower},
		AdminsLower:  []string{lower},
		CreatedAt:    d.now().UTC().Truncate(time.Microsecond),
	}
	if err := d.store.Insert(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// AddMember inserts username into the group. Adding an existing member is a
// no-op. Whether the account exists is the caller's concern.
func (d *Directory) AddMember(ctx context.Context, groupID, username string) (*Group, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.New(apperr.InvalidArgument, "username is required")
	}
	g, err := d.store.AddMember(ctx, groupID, username)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	if g == nil {
		return nil, apperr.New(apperr.NotFound, "group not found")
	}
	return g, nil
}

// RemoveMember drops username from the group. Removing a non-member is a
// no-op; the creator and the last member may be removed.
func (d *Directory) RemoveMember(ctx context.Context, groupID, username string) (*Group, error) {
	g, err := d.store.RemoveMember(ctx, groupID, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	if g == nil {
		return nil, apperr.New(apperr.NotFound, "group not found")
	}
	return g, nil
}

// IsMember is false, not an error, when the group does not exist.
func (d *Directory) IsMember(ctx context.Context, groupID, username string) (bool, error) {
	g, err := d.FindByID(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.HasMember(username), nil
}

// ListForUser returns the user's groups ordered by creation.
func (d *Directory) ListForUser(ctx context.Context, username string) ([]*Group, error) {
	groups, err := d.store.ListForUser(ctx, conversation.Fold(username))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	sortGroups(groups)
	return groups, nil
}

// FindByID returns nil when the group does not exist.
func (d *Directory) FindByID(ctx context.Context, groupID string) (*Group, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, nil
	}
	g, err := d.store.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	return g, nil
}
