package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestApplyBearer(t *testing.T) {
	header := http.Header{}
	in := mustParse(t, "wss://mcp.example.com/ws")

	out, err := auth.Apply(context.Background(), auth.Config{Type: auth.TypeBearer, Token: "secret"}, header, in)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	assert.Equal(t, in.String(), out.String())
}

func TestApplyBasic(t *testing.T) {
	header := http.Header{}
	in := mustParse(t, "wss://mcp.example.com/ws")

	out, err := auth.Apply(context.Background(), auth.Config{Type: auth.TypeBasic, Username: "alice", Password: "pw"}, header, in)
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6cHc=", header.Get("Authorization"))
	assert.Nil(t, out.User)
}

func TestApplyLiftsUserinfo(t *testing.T) {
	header := http.Header{}
	in := mustParse(t, "wss://alice:pw@mcp.example.com/ws")

	out, err := auth.Apply(context.Background(), auth.Config{}, header, in)
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6cHc=", header.Get("Authorization"))
	assert.Nil(t, out.User)
	assert.NotNil(t, in.User, "input URL must not be modified")
}

func TestApplyAPIKey(t *testing.T) {
	t.Run("default header", func(t *testing.T) {
		header := http.Header{}
		_, err := auth.Apply(context.Background(), auth.Config{Type: auth.TypeAPIKey, APIKey: "k1"}, header, mustParse(t, "ws://h/"))
		require.NoError(t, err)
		assert.Equal(t, "k1", header.Get(auth.DefaultAPIKeyHeader))
	})

	t.Run("custom header", func(t *testing.T) {
		header := http.Header{}
		_, err := auth.Apply(context.Background(), auth.Config{Type: auth.TypeAPIKey, APIKey: "k2", Header: "X-Token"}, header, mustParse(t, "ws://h/"))
		require.NoError(t, err)
		assert.Equal(t, "k2", header.Get("X-Token"))
	})

	t.Run("query", func(t *testing.T) {
		header := http.Header{}
		out, err := auth.Apply(context.Background(), auth.Config{Type: auth.TypeAPIKey, APIKey: "k3", In: auth.InQuery}, header, mustParse(t, "ws://h/?x=1"))
		require.NoError(t, err)
		assert.Equal(t, "k3", out.Query().Get("api_key"))
		assert.Equal(t, "1", out.Query().Get("x"))
		assert.Empty(t, header)
	})
}

func TestApplyOAuth2TokenSource(t *testing.T) {
	calls := 0
	cfg := auth.Config{
		Type: auth.TypeOAuth2,
		TokenSource: auth.TokenSourceFunc(func(ctx context.Context) (string, error) {
			calls++
			return "fresh", nil
		}),
	}

	header := http.Header{}
	_, err := auth.Apply(context.Background(), cfg, header, mustParse(t, "ws://h/"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", header.Get("Authorization"))
	assert.Equal(t, 1, calls)

	failing := auth.Config{
		Type: auth.TypeOAuth2,
		TokenSource: auth.TokenSourceFunc(func(ctx context.Context) (string, error) {
			return "", errors.New("idp down")
		}),
	}
	_, err = auth.Apply(context.Background(), failing, http.Header{}, mustParse(t, "ws://h/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth2")
}

func TestApplyLiftsQueryToken(t *testing.T) {
	for _, param := range []string{"token", "auth", "access_token"} {
		t.Run(param, func(t *testing.T) {
			header := http.Header{}
			out, err := auth.Apply(context.Background(), auth.Config{}, header, mustParse(t, "ws://h/mcp?"+param+"=abc&x=1"))
			require.NoError(t, err)
			assert.Equal(t, "Bearer abc", header.Get("Authorization"))
			assert.False(t, out.Query().Has(param))
			assert.Equal(t, "1", out.Query().Get("x"))
		})
	}

	t.Run("explicit header wins", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer preset"}}
		out, err := auth.Apply(context.Background(), auth.Config{}, header, mustParse(t, "ws://h/mcp?token=abc"))
		require.NoError(t, err)
		assert.Equal(t, "Bearer preset", header.Get("Authorization"))
		assert.Equal(t, "abc", out.Query().Get("token"))
	})

	t.Run("no token", func(t *testing.T) {
		header := http.Header{}
		_, err := auth.Apply(context.Background(), auth.Config{}, header, mustParse(t, "ws://h/mcp"))
		require.NoError(t, err)
		assert.Empty(t, header.Get("Authorization"))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     auth.Config
		wantErr bool
	}{
		{"none", auth.Config{}, false},
		{"bearer", auth.Config{Type: auth.TypeBearer, Token: "t"}, false},
		{"bearer missing token", auth.Config{Type: auth.TypeBearer}, true},
		{"basic missing user", auth.Config{Type: auth.TypeBasic, Password: "p"}, true},
		{"api key missing key", auth.Config{Type: auth.TypeAPIKey}, true},
		{"api key bad placement", auth.Config{Type: auth.TypeAPIKey, APIKey: "k", In: "cookie"}, true},
		{"oauth2 static", auth.Config{Type: auth.TypeOAuth2, Token: "t"}, false},
		{"oauth2 missing", auth.Config{Type: auth.TypeOAuth2}, true},
		{"unknown", auth.Config{Type: "kerberos"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryConfiguration))
		})
	}
}

func TestRedact(t *testing.T) {
	u, err := url.Parse("wss://bob:pw@h/mcp?token=abc&x=1")
	require.NoError(t, err)

	redacted := auth.Redact(u)
	assert.NotContains(t, redacted, "pw")
	assert.NotContains(t, redacted, "abc")
	assert.Contains(t, redacted, "x=1")
	assert.Equal(t, "", auth.Redact(nil))
}
