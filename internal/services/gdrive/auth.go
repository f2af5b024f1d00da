package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/int128/oauth2cli"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var Scopes = []string{
	"https://www.googleapis.com/auth/drive.metadata.readonly",
	"https://www.googleapis.com/auth/drive.file",
}

// Authenticator produces Drive credentials from an installed-app client secret and
// a cached token file. The token file uses the authorized-user layout written by
// google-auth, so tokens can be shared with other tools.
type Authenticator struct {
	CredentialsFile string
	TokenFile       string

	// OnAuthURL is called with the consent URL when no usable token exists.
	OnAuthURL func(url string)

	logger *zap.Logger
}

func NewAuthenticator(credentialsFile, tokenFile string, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Authenticator{
		CredentialsFile: credentialsFile,
		TokenFile:       tokenFile,
		logger:          logger,
	}
}

type authorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry,omitempty"`
}

// TokenSource returns a token source backed by a valid token. An expired token is
// refreshed, a missing one triggers the consent flow; either way the token file
// is rewritten.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	secret, err := os.ReadFile(a.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}

	cfg, err := google.ConfigFromJSON(secret, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	token, err := a.loadToken()
	if err != nil && !os.IsNotExist(err) {
		a.logger.Warn("ignoring unreadable drive token", zap.String("path", a.TokenFile), zap.Error(err))
	}

	if token == nil || !token.Valid() {
		if token != nil && token.RefreshToken != "" {
			token, err = cfg.TokenSource(ctx, token).Token()
			if err != nil {
				return nil, fmt.Errorf("failed to refresh drive token: %w", err)
			}
		} else {
			token, err = a.runConsentFlow(ctx, cfg)
			if err != nil {
				return nil, err
			}
		}

		if err := a.saveToken(cfg, token); err != nil {
			return nil, err
		}
	}

	return cfg.TokenSource(ctx, token), nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.TokenFile)
	if err != nil {
		return nil, err
	}

	var user authorizedUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  user.Token,
		RefreshToken: user.RefreshToken,
		TokenType:    "Bearer",
	}
	if user.Expiry != "" {
		expiry, err := time.Parse(time.RFC3339Nano, user.Expiry)
		if err != nil {
			return nil, fmt.Errorf("invalid token expiry: %w", err)
		}
		token.Expiry = expiry
	}

	return token, nil
}

func (a *Authenticator) saveToken(cfg *oauth2.Config, token *oauth2.Token) error {
	user := authorizedUser{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}
	if !token.Expiry.IsZero() {
		user.Expiry = token.Expiry.UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(a.TokenFile), os.ModePerm); err != nil {
		return err
	}

	if err := os.WriteFile(a.TokenFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write drive token: %w", err)
	}

	return nil
}

// runConsentFlow serves the OAuth redirect on a random loopback port and waits for
// the user to approve access in the browser.
func (a *Authenticator) runConsentFlow(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan string, 1)
	go func() {
		select {
		case <-ctx.Done():
		case url := <-ready:
			a.logger.Info("please visit this URL to authorize drive access", zap.String("url", url))
			if a.OnAuthURL != nil {
				a.OnAuthURL(url)
			}
		}
	}()

	token, err := oauth2cli.GetToken(ctx, oauth2cli.Config{
		OAuth2Config:           *cfg,
		AuthCodeOptions:        []oauth2.AuthCodeOption{oauth2.AccessTypeOffline},
		LocalServerReadyChan:   ready,
		LocalServerBindAddress: []string{"127.0.0.1:0"},
		RedirectURLHostname:    "127.0.0.1",
		LocalServerSuccessHTML: consentDoneHTML,
		Logf: func(format string, args ...any) {
			a.logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("drive authorization failed: %w", err)
	}

	return token, nil
}

const consentDoneHTML = `<html><body>The authentication flow has completed. You may close this window.</body></html>`
