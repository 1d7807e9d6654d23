package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	userstore "github.com/dalemusser/coachhub/internal/app/store/users"
	"github.com/dalemusser/coachhub/internal/app/system/limits"
	"github.com/dalemusser/coachhub/internal/app/system/normalize"
	"golang.org/x/oauth2/clientcredentials"
)

// DirectoryConfig configures access to the identity provider's user
// directory API.
type DirectoryConfig struct {
	BaseURL      string // e.g. https://idp.example.com/api/v2
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether enough is configured to call the directory.
func (c DirectoryConfig) Enabled() bool {
	return c.BaseURL != "" && c.TokenURL != "" && c.ClientID != ""
}

// Directory queries the identity provider for accounts by email using a
// client-credentials token.
type Directory struct {
	base   string
	client *http.Client
}

// NewDirectory creates a Directory. The returned client refreshes its
// token as needed.
func NewDirectory(ctx context.Context, cfg DirectoryConfig) *Directory {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Directory{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: cc.Client(ctx),
	}
}

type directoryUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

// LookupEmail implements Lookup. Only verified addresses are accepted.
func (d *Directory) LookupEmail(ctx context.Context, email string) (*userstore.Identity, error) {
	endpoint := d.base + "/users?email=" + url.QueryEscape(normalize.Email(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var users []directoryUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, limits.MaxUpstreamResponseSize)).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	for _, u := range users {
		if u.Subject == "" || !u.EmailVerified {
			continue
		}
		if normalize.Email(u.Email) != normalize.Email(email) {
			continue
		}
		return &userstore.Identity{
			Subject:  u.Subject,
			Email:    u.Email,
			FullName: u.Name,
			Role:     u.Role,
		}, nil
	}
	return nil, ErrNotFound
}
