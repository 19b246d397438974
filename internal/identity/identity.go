// Package identity wraps the hosted identity provider's REST surface:
// sign-in, registration, password reset, reauthentication, token refresh
// and account deletion. Provider error codes never leave the package raw;
// they are translated into a fixed table of user-facing messages.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

const (
	defaultBaseURL  = "https://identitytoolkit.googleapis.com"
	defaultTokenURL = "https://securetoken.googleapis.com"

	// refreshSkew is how close to expiry a token may get before
	// RefreshIfNeeded exchanges it.
	refreshSkew = 2 * time.Minute
)

// Config carries the gateway's collaborators and endpoints. BaseURL and
// TokenURL default to the hosted provider; tests point them at a local
// server.
type Config struct {
	APIKey     string
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     logging.Logger
}

// Gateway holds the authenticated token state for one signed-in account.
// It is constructed once at process start and shared by reference.
type Gateway struct {
	apiKey   string
	baseURL  string
	tokenURL string
	http     *http.Client
	clk      clock.Clock
	log      logging.Logger

	mu           sync.Mutex
	idToken      string
	refreshToken string
	userID       string
	email        string
	expiry       time.Time
}

// NewGateway builds a Gateway from cfg, filling in defaults for anything
// unset.
func NewGateway(cfg Config) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Gateway{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL: strings.TrimRight(cfg.TokenURL, "/"),
		http:     cfg.HTTPClient,
		clk:      cfg.Clock,
		log:      cfg.Logger,
	}
}

// tokenResponse is the provider's sign-in/sign-up response shape.
type tokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignIn authenticates with email and password and adopts the returned
// token state.
func (g *Gateway) SignIn(ctx context.Context, email, password string) error {
	var resp tokenResponse
	err := g.post(ctx, g.accountsURL("signInWithPassword"), map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return err
	}
	g.adoptTokens(resp)
	g.log.Info(ctx, "signed in", "user_id", g.UserID())
	return nil
}

// Register creates a new account and signs it in.
func (g *Gateway) Register(ctx context.Context, email, password string) error {
	var resp tokenResponse
	err := g.post(ctx, g.accountsURL("signUp"), map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return err
	}
	g.adoptTokens(resp)
	g.log.Info(ctx, "account registered", "user_id", g.UserID())
	return nil
}

// SendPasswordReset asks the provider to email a password-reset link.
func (g *Gateway) SendPasswordReset(ctx context.Context, email string) error {
	return g.post(ctx, g.accountsURL("sendOobCode"), map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// Reauthenticate re-verifies the current account's password. Required
// before destructive operations such as account deletion.
func (g *Gateway) Reauthenticate(ctx context.Context, password string) error {
	email := g.Email()
	if email == "" {
		return common.ErrNotSignedIn
	}
	return g.SignIn(ctx, email, password)
}

// SignInWithRefreshToken restores a session from a cached refresh token
// (the sealed-credential fast path).
func (g *Gateway) SignInWithRefreshToken(ctx context.Context, refreshToken string) error {
	g.mu.Lock()
	g.refreshToken = refreshToken
	g.mu.Unlock()
	return g.Refresh(ctx)
}

// refreshResponse is the secure-token endpoint's snake_case shape.
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    string `json:"expires_in"`
}

// Refresh exchanges the held refresh token for a fresh ID token.
func (g *Gateway) Refresh(ctx context.Context) error {
	g.mu.Lock()
	refreshToken := g.refreshToken
	g.mu.Unlock()
	if refreshToken == "" {
		return common.ErrNotSignedIn
	}

	var resp refreshResponse
	url := fmt.Sprintf("%s/v1/token?key=%s", g.tokenURL, g.apiKey)
	err := g.post(ctx, url, map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return err
	}

	g.adoptTokens(tokenResponse{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		LocalID:      resp.UserID,
		ExpiresIn:    resp.ExpiresIn,
	})
	return nil
}

// RefreshIfNeeded refreshes the ID token when it is absent or within the
// skew window of expiry.
func (g *Gateway) RefreshIfNeeded(ctx context.Context) error {
	g.mu.Lock()
	fresh := g.idToken != "" && g.clk.Now().Add(refreshSkew).Before(g.expiry)
	g.mu.Unlock()
	if fresh {
		return nil
	}
	return g.Refresh(ctx)
}

// DeleteAccount removes the identity record of the signed-in account and
// drops the local token state.
func (g *Gateway) DeleteAccount(ctx context.Context) error {
	g.mu.Lock()
	idToken := g.idToken
	g.mu.Unlock()
	if idToken == "" {
		return common.ErrNotSignedIn
	}

	if err := g.post(ctx, g.accountsURL("delete"), map[string]any{"idToken": idToken}, nil); err != nil {
		return err
	}
	g.SignOut()
	return nil
}

// SignOut drops the local token state. The provider keeps no server-side
// session to end.
func (g *Gateway) SignOut() {
	g.mu.Lock()
	g.idToken = ""
	g.refreshToken = ""
	g.userID = ""
	g.email = ""
	g.expiry = time.Time{}
	g.mu.Unlock()
}

// UserID returns the signed-in account's id, or "".
func (g *Gateway) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userID
}

// Email returns the signed-in account's email, or "".
func (g *Gateway) Email() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.email
}

// RefreshToken returns the held refresh token for credential caching.
func (g *Gateway) RefreshToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshToken
}

// Valid reports whether a non-expired ID token is held.
func (g *Gateway) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idToken != "" && g.clk.Now().Before(g.expiry)
}

// SignedIn reports whether any account state is held, expired or not.
func (g *Gateway) SignedIn() bool {
	return g.UserID() != ""
}

// tokenClaims is the subset of ID-token claims the client reads. The token
// is parsed without signature verification: the client is not the token's
// audience-side verifier, it only mines its own subject and expiry.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// adoptTokens installs a token response as the current account state.
// Subject, expiry and email come from the ID token's claims when it parses,
// with the response fields as fallback.
func (g *Gateway) adoptTokens(resp tokenResponse) {
	userID := resp.LocalID
	email := resp.Email
	expiry := time.Time{}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil {
		expiry = g.clk.Now().Add(time.Duration(secs) * time.Second)
	}

	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.IDToken, claims); err == nil {
		if claims.Subject != "" {
			userID = claims.Subject
		}
		if claims.Email != "" {
			email = claims.Email
		}
		if claims.ExpiresAt != nil {
			expiry = claims.ExpiresAt.Time
		}
	}

	g.mu.Lock()
	g.idToken = resp.IDToken
	if resp.RefreshToken != "" {
		g.refreshToken = resp.RefreshToken
	}
	g.userID = userID
	if email != "" {
		g.email = email
	}
	g.expiry = expiry
	g.mu.Unlock()
}

func (g *Gateway) accountsURL(action string) string {
	return fmt.Sprintf("%s/v1/accounts:%s?key=%s", g.baseURL, action, g.apiKey)
}

// post sends one JSON request and decodes the response into out. Provider
// rejections come back as *Error with the mapped user-facing message.
func (g *Gateway) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading identity response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		code := providerCode(data)
		g.log.Warn(ctx, "identity request rejected", "status", resp.StatusCode, "code", code)
		return providerError(code)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding identity response: %w", err)
		}
	}
	return nil
}

// providerCode extracts the provider's error code from a rejection body.
// Codes sometimes arrive with trailing detail ("WEAK_PASSWORD : ..."), which
// is stripped.
func providerCode(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	code := envelope.Error.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	return code
}
