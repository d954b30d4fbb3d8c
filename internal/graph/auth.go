package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const loginBase = "https://login.microsoftonline.com"

// DefaultChatScope is the delegated scope persona accounts use to send.
const DefaultChatScope = "Chat.ReadWrite"

// UploadScopes are the delegated scopes needed for report uploads.
const UploadScopes = "Files.ReadWrite.All Sites.ReadWrite.All"

// Credentials is the parsed credentials file: a "_app" entry holding the
// application client secret plus one entry per persona key.
type Credentials map[string]CredentialEntry

// CredentialEntry holds one principal's secret material.
type CredentialEntry struct {
	Password     string `json:"password,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// LoadCredentials reads the credentials file. A missing file returns an
// empty set: the relay runs (and serves introspection) with no send ability.
func LoadCredentials(path string) Credentials {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}
	}
	return creds
}

// HasPersona reports whether send credentials exist for a persona key.
func (c Credentials) HasPersona(key string) bool {
	entry, ok := c[strings.ToLower(key)]
	return ok && entry.Password != ""
}

// PersonaKeys returns the keys with stored send credentials, skipping the
// reserved "_app" entry.
func (c Credentials) PersonaKeys() []string {
	var keys []string
	for k, e := range c {
		if strings.HasPrefix(k, "_") || e.Password == "" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// TokenSource acquires and caches bearer tokens: an app-only token via the
// client-credentials grant for reads, and per-persona user tokens via the
// ROPC grant for sends and uploads.
type TokenSource struct {
	tenantID  string
	clientID  string
	credsPath string
	loginURL  string
	client    *http.Client

	mu    sync.Mutex
	cache map[string]cachedToken
}

type cachedToken struct {
	token   string
	expires time.Time
}

// NewTokenSource creates a token source reading secrets from the
// credentials file at credsPath.
func NewTokenSource(tenantID, clientID, credsPath string) *TokenSource {
	return &TokenSource{
		tenantID:  tenantID,
		clientID:  clientID,
		credsPath: credsPath,
		loginURL:  loginBase,
		client:    &http.Client{Timeout: 30 * time.Second},
		cache:     make(map[string]cachedToken),
	}
}

// Credentials re-reads the credentials file. Callers use this for the
// per-cycle "who can send" check; tokens themselves are cached.
func (ts *TokenSource) Credentials() Credentials {
	return LoadCredentials(ts.credsPath)
}

// AppToken returns the application token used for reading any message.
func (ts *TokenSource) AppToken(ctx context.Context) (string, error) {
	creds := ts.Credentials()
	secret := creds["_app"].ClientSecret
	if secret == "" {
		return "", fmt.Errorf("no app client secret configured")
	}

	return ts.token(ctx, "_app", url.Values{
		"client_id":     {ts.clientID},
		"scope":         {"https://graph.microsoft.com/.default"},
		"client_secret": {secret},
		"grant_type":    {"client_credentials"},
	})
}

// UserToken returns a delegated token for a persona account with the given
// space-separated scopes.
func (ts *TokenSource) UserToken(ctx context.Context, personaKey, email, scopes string) (string, error) {
	key := strings.ToLower(personaKey)
	creds := ts.Credentials()
	entry, ok := creds[key]
	if !ok || entry.Password == "" {
		return "", fmt.Errorf("no credentials for persona %s", key)
	}
	if email == "" {
		return "", fmt.Errorf("persona %s has no address", key)
	}

	return ts.token(ctx, key+"|"+scopes, url.Values{
		"client_id":  {ts.clientID},
		"scope":      {scopes},
		"username":   {email},
		"password":   {entry.Password},
		"grant_type": {"password"},
	})
}

func (ts *TokenSource) token(ctx context.Context, cacheKey string, form url.Values) (string, error) {
	ts.mu.Lock()
	if cached, ok := ts.cache[cacheKey]; ok && time.Now().Before(cached.expires) {
		ts.mu.Unlock()
		return cached.token, nil
	}
	ts.mu.Unlock()

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", ts.loginURL, ts.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int    `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token error: %s", truncate(body.ErrorDescription, 100))
	}

	expires := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	ts.mu.Lock()
	// Refresh a minute early so cached tokens never expire mid-call
	ts.cache[cacheKey] = cachedToken{token: body.AccessToken, expires: expires.Add(-time.Minute)}
	ts.mu.Unlock()

	return body.AccessToken, nil
}

// SetLoginURL overrides the token endpoint base. Tests only.
func (ts *TokenSource) SetLoginURL(u string) {
	ts.loginURL = strings.TrimRight(u, "/")
}
