// Package auth attaches outbound credentials to provider connections.
// A Config describes one credential; Apply writes it into the handshake
// headers and URL of a websocket dial.
package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
)

// Type identifies a credential scheme.
type Type string

const (
	// TypeNone sends no credential.
	TypeNone Type = ""
	// TypeBearer sends "Authorization: Bearer <token>".
	TypeBearer Type = "bearer"
	// TypeBasic sends "Authorization: Basic ...".
	TypeBasic Type = "basic"
	// TypeAPIKey sends the key in a header or a query parameter.
	TypeAPIKey Type = "api_key"
	// TypeOAuth2 sends an access token as a bearer token.
	TypeOAuth2 Type = "oauth2"
)

// DefaultAPIKeyHeader is the header used for API keys when none is set.
const DefaultAPIKeyHeader = "X-API-Key"

// Placement of an API key.
const (
	InHeader = "header"
	InQuery  = "query"
)

// queryTokenParams are the query parameters that may already carry a token
// in a configured URL.
var queryTokenParams = []string{"token", "auth", "access_token"}

// TokenSource supplies access tokens for OAuth2 credentials. It is consulted
// on every dial so a refreshed token is picked up on reconnect.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Config describes a single credential.
type Config struct {
	Type     Type   `yaml:"type" json:"type"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	// Header names the API key header. Defaults to X-API-Key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`
	// In is "header" (default) or "query" for API keys.
	In string `yaml:"in,omitempty" json:"in,omitempty"`

	// TokenSource overrides Token for OAuth2 credentials.
	TokenSource TokenSource `yaml:"-" json:"-"`
}

// IsZero reports whether no credential is configured.
func (c Config) IsZero() bool {
	return c.Type == TypeNone
}

// Validate checks that the fields required by the credential type are set.
func (c Config) Validate() error {
	switch c.Type {
	case TypeNone:
		return nil
	case TypeBearer:
		if c.Token == "" {
			return mcperrors.InvalidConfig("auth.token", "bearer auth requires a token")
		}
	case TypeOAuth2:
		if c.Token == "" && c.TokenSource == nil {
			return mcperrors.InvalidConfig("auth.token", "oauth2 auth requires a token or token source")
		}
	case TypeBasic:
		if c.Username == "" {
			return mcperrors.InvalidConfig("auth.username", "basic auth requires a username")
		}
	case TypeAPIKey:
		if c.APIKey == "" {
			return mcperrors.InvalidConfig("auth.api_key", "api key auth requires a key")
		}
		if c.In != "" && c.In != InHeader && c.In != InQuery {
			return mcperrors.InvalidConfig("auth.in", "must be \"header\" or \"query\"")
		}
	default:
		return mcperrors.InvalidConfig("auth.type", "unsupported auth type "+string(c.Type))
	}
	return nil
}

// Apply writes the credential into header and returns the URL to dial.
// The input URL is not modified and the returned URL never carries
// userinfo.
//
// With no credential configured, userinfo in the URL is lifted into a basic
// header, and a token found in the token, auth or access_token query
// parameter is lifted into a bearer header and removed from the URL.
func Apply(ctx context.Context, cfg Config, header http.Header, u *url.URL) (*url.URL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := *u
	userinfo := out.User
	out.User = nil

	switch cfg.Type {
	case TypeNone:
		if header.Get("Authorization") != "" {
			return &out, nil
		}
		if userinfo != nil && userinfo.Username() != "" {
			password, _ := userinfo.Password()
			header.Set("Authorization", "Basic "+basicCredential(userinfo.Username(), password))
			return &out, nil
		}
		if token, rest, ok := liftQueryToken(out.Query()); ok {
			header.Set("Authorization", "Bearer "+token)
			out.RawQuery = rest.Encode()
		}

	case TypeBearer:
		header.Set("Authorization", "Bearer "+cfg.Token)

	case TypeOAuth2:
		token := cfg.Token
		if cfg.TokenSource != nil {
			t, err := cfg.TokenSource.Token(ctx)
			if err != nil {
				return nil, mcperrors.WrapError(err, mcperrors.CodeConnectionFailed, "failed to obtain oauth2 token", mcperrors.CategoryTransport, mcperrors.SeverityError)
			}
			token = t
		}
		header.Set("Authorization", "Bearer "+token)

	case TypeBasic:
		header.Set("Authorization", "Basic "+basicCredential(cfg.Username, cfg.Password))

	case TypeAPIKey:
		if cfg.In == InQuery {
			q := out.Query()
			q.Set(apiKeyParam(cfg.Header), cfg.APIKey)
			out.RawQuery = q.Encode()
		} else {
			name := cfg.Header
			if name == "" {
				name = DefaultAPIKeyHeader
			}
			header.Set(name, cfg.APIKey)
		}
	}

	return &out, nil
}

// Redact returns u without userinfo or credential query parameters, for
// logging and metadata.
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	out := *u
	out.User = nil
	q := out.Query()
	for _, name := range append(queryTokenParams, "api_key") {
		if q.Has(name) {
			q.Set(name, "REDACTED")
		}
	}
	out.RawQuery = q.Encode()
	return out.String()
}

func liftQueryToken(q url.Values) (string, url.Values, bool) {
	for _, name := range queryTokenParams {
		if token := q.Get(name); token != "" {
			q.Del(name)
			return token, q, true
		}
	}
	return "", q, false
}

func basicCredential(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func apiKeyParam(header string) string {
	if header == "" {
		return "api_key"
	}
	return strings.ToLower(strings.ReplaceAll(header, "-", "_"))
}
