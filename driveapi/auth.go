package driveapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// default OAuth2 endpoints, overridable via AuthConfig for testing.
const (
	defaultAuthCodeURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultAuthTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// AuthConfig carries the OAuth2 application identity, loaded from the
// external configuration document.
type AuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	CodeURL      string `yaml:"-"`
	TokenURL     string `yaml:"-"`
}

func (a *AuthConfig) applyDefaults() {
	if a.CodeURL == "" {
		a.CodeURL = defaultAuthCodeURL
	}
	if a.TokenURL == "" {
		a.TokenURL = defaultAuthTokenURL
	}
}

// Auth represents a set of OAuth2 tokens together with the application
// identity used to refresh them. It is process-wide state initialized once
// per service cycle; its token file is the only durable piece.
type Auth struct {
	AuthConfig   AuthConfig `json:"config"`
	Account      string     `json:"account"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	path         string
}

// authError mirrors the documented shape of Microsoft's OAuth2 error body.
type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ToFile writes the auth tokens to disk atomically (write-temp, then
// rename), improving on a plain WriteFile without changing the on-disk
// shape.
func (a Auth) ToFile(path string) error {
	a.path = path
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// FromFile populates Auth from a token file on disk.
func (a *Auth) FromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	a.path = path
	if err := json.Unmarshal(data, a); err != nil {
		return err
	}
	a.AuthConfig.applyDefaults()
	return nil
}

// Refresh renews the access token if it has expired. Network errors are
// swallowed (the session keeps using its stale token, and the next call
// that the remote rejects fails with a RemoteFailure carrying the 401).
func (a *Auth) Refresh() {
	if a.ExpiresAt > time.Now().Unix() {
		return
	}

	oldExpiry := a.ExpiresAt
	body := strings.NewReader(url.Values{
		"client_id":     {a.AuthConfig.ClientID},
		"client_secret": {a.AuthConfig.ClientSecret},
		"redirect_uri":  {a.AuthConfig.RedirectURI},
		"refresh_token": {a.RefreshToken},
		"grant_type":    {"refresh_token"},
	}.Encode())

	resp, err := http.Post(a.AuthConfig.TokenURL, "application/x-www-form-urlencoded", body)
	if err != nil {
		log.Warn().Err(err).Msg("Could not reach token endpoint during refresh; continuing with stale token.")
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(respBody, a); err != nil {
		log.Error().Err(err).Msg("Could not parse token refresh response.")
		return
	}
	if a.ExpiresAt == oldExpiry {
		a.ExpiresAt = time.Now().Unix() + a.ExpiresIn
	}

	if a.AccessToken == "" || a.RefreshToken == "" {
		var authErr authError
		json.Unmarshal(respBody, &authErr)
		log.Error().
			Int("status", resp.StatusCode).
			Str("error", authErr.Error).
			Str("description", authErr.ErrorDescription).
			Msg("Failed to renew access token.")
		return
	}
	if err := a.ToFile(a.path); err != nil {
		log.Error().Err(err).Msg("Could not persist refreshed token.")
	}
}

// authURL builds the interactive authorization URL for the login flow.
func authURL(cfg AuthConfig) string {
	v := url.Values{
		"client_id":     {cfg.ClientID},
		"scope":         {"files.readwrite.all offline_access"},
		"response_type": {"code"},
		"redirect_uri":  {cfg.RedirectURI},
	}
	return cfg.CodeURL + "?" + v.Encode()
}

// exchangeCode trades an authorization code for a fresh token set.
func exchangeCode(cfg AuthConfig, code string) (*Auth, error) {
	body := strings.NewReader(url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"redirect_uri":  {cfg.RedirectURI},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}.Encode())

	resp, err := http.Post(cfg.TokenURL, "application/x-www-form-urlencoded", body)
	if err != nil {
		return nil, fmt.Errorf("could not reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	auth := &Auth{}
	if err := json.Unmarshal(respBody, auth); err != nil {
		return nil, fmt.Errorf("could not parse token response: %w", err)
	}
	if auth.ExpiresAt == 0 {
		auth.ExpiresAt = time.Now().Unix() + auth.ExpiresIn
	}
	auth.AuthConfig = cfg

	if auth.AccessToken == "" || auth.RefreshToken == "" {
		return nil, fmt.Errorf("token exchange failed: HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return auth, nil
}

// Login runs the interactive authorization-code flow: it prints the
// authorization URL, reads the redirected code from in, and exchanges it
// for a token written to path. The user opens the printed URL in a browser
// of their own; no browser is launched from here.
func Login(cfg AuthConfig, path string, promptOut io.Writer, codeIn io.Reader) error {
	cfg.applyDefaults()
	fmt.Fprintf(promptOut, "Please visit the following URL:\n%s\n\n", authURL(cfg))
	fmt.Fprintln(promptOut, "Paste the \"code\" query parameter from the redirected URL:")

	var code string
	if _, err := fmt.Fscanln(codeIn, &code); err != nil {
		return fmt.Errorf("could not read authorization code: %w", err)
	}

	auth, err := exchangeCode(cfg, code)
	if err != nil {
		return err
	}
	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	return auth.ToFile(path)
}

// LoadAuth loads tokens from path, refreshing if expired. It does not start
// a new interactive login flow - that is Login's job.
func LoadAuth(path string) (*Auth, error) {
	auth := &Auth{}
	if err := auth.FromFile(path); err != nil {
		return nil, err
	}
	auth.Refresh()
	return auth, nil
}

// ensureConfigDir is a small helper used by callers that write token/catalog
// files next to each other.
func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0700)
}
