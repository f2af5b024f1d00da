package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "granted" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// approve plays the browser: it follows the local server to the consent URL and
// sends the code back to the redirect URI.
func approve(t *testing.T, local string) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.Get(local)
	if err != nil {
		t.Errorf("open local server: %v", err)
		return
	}
	resp.Body.Close()

	consent, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Errorf("parse consent url: %v", err)
		return
	}
	query := consent.Query()
	if query.Get("access_type") != "offline" {
		t.Errorf("access_type = %q", query.Get("access_type"))
	}

	callback, err := url.Parse(query.Get("redirect_uri"))
	if err != nil {
		t.Errorf("parse redirect uri: %v", err)
		return
	}
	callback.RawQuery = url.Values{"code": {"granted"}, "state": {query.Get("state")}}.Encode()

	resp, err = client.Get(callback.String())
	if err != nil {
		t.Errorf("call redirect uri: %v", err)
		return
	}
	resp.Body.Close()
}

func TestConsentFlow(t *testing.T) {
	tokens := newTokenServer(t)
	a := NewAuthenticator("", "", zap.NewNop())
	a.OnAuthURL = func(local string) { go approve(t, local) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := a.runConsentFlow(ctx, &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokens.URL},
		Scopes:       Scopes,
	})
	must.NoError(t, err)
	must.EqOp(t, "at-1", token.AccessToken)
	must.EqOp(t, "rt-1", token.RefreshToken)
}

func TestConsentFlowCanceled(t *testing.T) {
	a := NewAuthenticator("", "", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	a.OnAuthURL = func(string) { cancel() }

	_, err := a.runConsentFlow(ctx, &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "http://127.0.0.1:1/token"},
	})
	must.Error(t, err)
}

func TestTokenSourceRunsConsentAndSavesToken(t *testing.T) {
	tokens := newTokenServer(t)
	dir := t.TempDir()

	secret, err := json.Marshal(map[string]any{
		"installed": map[string]any{
			"client_id":     "client",
			"client_secret": "secret",
			"auth_uri":      "https://accounts.example.com/auth",
			"token_uri":     tokens.URL,
			"redirect_uris": []string{"http://localhost"},
		},
	})
	must.NoError(t, err)
	credentials := filepath.Join(dir, "credentials.json")
	must.NoError(t, os.WriteFile(credentials, secret, 0600))

	a := NewAuthenticator(credentials, filepath.Join(dir, "token", "token.json"), zap.NewNop())
	a.OnAuthURL = func(local string) { go approve(t, local) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = a.TokenSource(ctx)
	must.NoError(t, err)

	var saved authorizedUser
	data, err := os.ReadFile(a.TokenFile)
	must.NoError(t, err)
	must.NoError(t, json.Unmarshal(data, &saved))
	must.EqOp(t, "at-1", saved.Token)
	must.EqOp(t, "rt-1", saved.RefreshToken)
	must.EqOp(t, tokens.URL, saved.TokenURI)
	must.SliceContainsAll(t, Scopes, saved.Scopes)
}
