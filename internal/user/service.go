package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/conversation"
)

const issuer = "go-chat-engine"

var errInvalidCredentials = apperr.New(apperr.Unauthenticated, "invalid credentials")

// Service is the in-process identity provider: it owns accounts and issues
// and validates bearer tokens.
type Service struct {
	repo      Repository
	jwtSecret string
	tokenTTL  time.Duration
}

type MyJWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Repository, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Identity, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.New(apperr.InvalidArgument, "username and password are required")
	}
	if err := conversation.ValidUsername(username); err != nil {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:       uuid.NewString(),
		Username: username,
		Password: string(hashedPwd),
	}
	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	id := u.Identity()
	return &id, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, apperr.New(apperr.InvalidArgument, "username and password are required")
	}
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	ss, err := s.IssueToken(u.Identity())
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

// IssueToken signs a token for id.
func (s *Service) IssueToken(id Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("token is not valid")
		}
		return Identity{}, apperr.Wrap(apperr.Unauthenticated, "invalid token", err)
	}
	if claims.Subject == "" || claims.Username == "" {
		return Identity{}, apperr.New(apperr.Unauthenticated, "invalid token")
	}

	return Identity{UserID: claims.Subject, Username: claims.Username}, nil
}

// LookupUsername reports the account behind username, or NotFound.
func (s *Service) LookupUsername(ctx context.Context, username string) (Identity, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup %q: %w", username, err)
	}
	if u == nil {
		return Identity{}, apperr.New(apperr.NotFound, "user does not exist")
	}
	return u.Identity(), nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}
