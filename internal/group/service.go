package group

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/user"
)

// UserLookup answers whether a username denotes a real account.
type UserLookup interface {
	LookupUsername(ctx context.Context, username string) (user.Identity, error)
}

// Service runs the caller-facing group flows on top of the Directory.
type Service struct {
	dir    *Directory
	lookup UserLookup
	logger zerolog.Logger
}

// NewService builds the flows. lookup may be nil, in which case added
// usernames are not validated.
func NewService(dir *Directory, lookup UserLookup, logger zerolog.Logger) *Service {
	return &Service{dir: dir, lookup: lookup, logger: logger}
}

func (s *Service) Directory() *Directory { return s.dir }

func (s *Service) Create(ctx context.Context, caller user.Identity, name string) (*Group, error) {
	return s.dir.Create(ctx, name, caller.Username)
}

func (s *Service) List(ctx context.Context, caller user.Identity) ([]*Group, error) {
	return s.dir.ListForUser(ctx, caller.Username)
}

// Get returns a group the caller belongs to.
func (s *Service) Get(ctx context.Context, caller user.Identity, groupID string) (*Group, error) {
	g, err := s.dir.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.New(apperr.NotFound, "group not found")
	}
	if !g.HasMember(caller.Username) {
		return nil, apperr.New(apperr.Forbidden, "not a member of this group")
	}
	return g, nil
}

// AddMember lets a member add another user. A lookup that cannot be
// completed skips validation instead of blocking the add.
func (s *Service) AddMember(ctx context.Context, caller user.Identity, groupID, username string) (*Group, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.New(apperr.InvalidArgument, "username is required")
	}
	if _, err := s.Get(ctx, caller, groupID); err != nil {
		return nil, err
	}

	if s.lookup != nil {
		id, err := s.lookup.LookupUsername(ctx, username)
		switch {
		case apperr.Is(err, apperr.NotFound):
			return nil, apperr.New(apperr.NotFound, "user does not exist")
		case err != nil:
			s.logger.Warn().Err(err).Str("username", username).Msg("user lookup failed, skipping validation")
		default:
			username = id.Username
		}
	}

	return s.dir.AddMember(ctx, groupID, username)
}

// RemoveMember lets a member remove any member, including themselves.
func (s *Service) RemoveMember(ctx context.Context, caller user.Identity, groupID, username string) (*Group, error) {
	if _, err := s.Get(ctx, caller, groupID); err != nil {
		return nil, err
	}
	return s.dir.RemoveMember(ctx, groupID, username)
}
