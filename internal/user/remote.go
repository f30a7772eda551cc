package user

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-chat-engine/internal/apperr"
)

// RemoteLookup asks an external identity service whether a username exists
// via GET {base}/users/{username}.
type RemoteLookup struct {
	baseURL string
	client  *http.Client
}

func NewRemoteLookup(baseURL string) *RemoteLookup {
	return &RemoteLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

// LookupUsername returns NotFound for a 404. Any other failure is a plain
// error, which callers treat as "validation skipped".
func (l *RemoteLookup) LookupUsername(ctx context.Context, username string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/users/"+url.PathEscape(username), nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Identity{}, apperr.New(apperr.NotFound, "user does not exist")
	default:
		return Identity{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var body struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("decode identity response: %w", err)
	}
	if body.Username == "" {
		body.Username = username
	}
	return Identity{UserID: body.ID, Username: body.Username}, nil
}
