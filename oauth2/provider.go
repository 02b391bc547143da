package oauth2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	identity "github.com/MrEthical07/goIdentity"
	xoauth2 "golang.org/x/oauth2"
)

var (
	// ErrMissingEndpoint is returned when a provider has no auth, token or
	// user-info URL after presets and overrides are applied.
	ErrMissingEndpoint = errors.New("oauth2: provider endpoint not configured")
	// ErrUpstream wraps non-2xx answers from a provider API.
	ErrUpstream = errors.New("oauth2: provider returned an error")
)

const maxProfileBytes = 1 << 20

// ProfileDecoder maps a user-info response body to a profile.
type ProfileDecoder func(body []byte) (identity.OAuth2User, error)

// Generic is an authorization-code provider over golang.org/x/oauth2 with
// a JSON user-info endpoint.
type Generic struct {
	name        string
	cfg         xoauth2.Config
	userInfoURL string
	emailsURL   string
	decode      ProfileDecoder
	authParams  []xoauth2.AuthCodeOption
	client      *http.Client
}

// Option customizes a Generic provider.
type Option func(*Generic)

// WithHTTPClient routes token exchange and API calls through c.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generic) { g.client = c }
}

// WithDecoder replaces the profile decoder.
func WithDecoder(d ProfileDecoder) Option {
	return func(g *Generic) { g.decode = d }
}

// New builds the provider for name. Known names start from a preset whose
// endpoints cfg may override; any other name needs every endpoint in cfg.
// New satisfies goIdentity.OAuth2ProviderFactory.
func New(name string, cfg identity.OAuth2ProviderConfig, callbackURL string) (identity.OAuth2Provider, error) {
	return NewGeneric(name, cfg, callbackURL)
}

// NewGeneric is New with options.
func NewGeneric(name string, cfg identity.OAuth2ProviderConfig, callbackURL string, opts ...Option) (*Generic, error) {
	p, known := presetFor(name, cfg)
	if !known {
		p = preset{decode: decodeOIDC}
	}
	if cfg.AuthURL != "" {
		p.endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		p.endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL != "" {
		p.userInfoURL = cfg.UserInfoURL
		if p.emailsURL != "" {
			p.emailsURL = strings.TrimSuffix(cfg.UserInfoURL, "/") + "/emails"
		}
	}
	if p.endpoint.AuthURL == "" || p.endpoint.TokenURL == "" || p.userInfoURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingEndpoint, name)
	}

	scopes := p.scopes
	if len(cfg.Scopes) > 0 {
		scopes = cfg.Scopes
	}
	g := &Generic{
		name: name,
		cfg: xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     p.endpoint,
			RedirectURL:  callbackURL,
			Scopes:       append([]string(nil), scopes...),
		},
		userInfoURL: p.userInfoURL,
		emailsURL:   p.emailsURL,
		decode:      p.decode,
		authParams:  p.authParams,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generic) Name() string { return g.name }

// LoginURL returns the consent URL carrying state. Extra scopes are added
// to the configured ones.
func (g *Generic) LoginURL(state string, scopes []string) string {
	cfg := g.cfg
	cfg.Scopes = mergeScopes(g.cfg.Scopes, scopes)
	return cfg.AuthCodeURL(state, g.authParams...)
}

func (g *Generic) ExchangeCode(ctx context.Context, code string) (identity.OAuth2Tokens, error) {
	tok, err := g.cfg.Exchange(g.ctx(ctx), code)
	if err != nil {
		return identity.OAuth2Tokens{}, fmt.Errorf("oauth2 %s exchange: %w", g.name, err)
	}
	return tokens(tok), nil
}

// RefreshTokens trades refreshToken for a new access token. Providers that
// do not rotate refresh tokens keep the old one.
func (g *Generic) RefreshTokens(ctx context.Context, refreshToken string) (identity.OAuth2Tokens, error) {
	if refreshToken == "" {
		return identity.OAuth2Tokens{}, fmt.Errorf("oauth2 %s refresh: empty refresh token", g.name)
	}
	src := g.cfg.TokenSource(g.ctx(ctx), &xoauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return identity.OAuth2Tokens{}, fmt.Errorf("oauth2 %s refresh: %w", g.name, err)
	}
	return tokens(tok), nil
}

// User fetches the provider profile. When the profile carries no email and
// the provider exposes an email list, the primary verified address is used.
func (g *Generic) User(ctx context.Context, accessToken string) (identity.OAuth2User, error) {
	body, err := g.get(ctx, g.userInfoURL, accessToken)
	if err != nil {
		return identity.OAuth2User{}, err
	}
	u, err := g.decode(body)
	if err != nil {
		return identity.OAuth2User{}, fmt.Errorf("oauth2 %s profile: %w", g.name, err)
	}
	if u.Email == "" && g.emailsURL != "" {
		body, err := g.get(ctx, g.emailsURL, accessToken)
		if err != nil {
			return identity.OAuth2User{}, err
		}
		email, verified, err := primaryEmail(body)
		if err != nil {
			return identity.OAuth2User{}, fmt.Errorf("oauth2 %s emails: %w", g.name, err)
		}
		u.Email, u.Verified = email, verified
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return u, nil
}

func (g *Generic) get(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := g.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth2 %s: %w", g.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("oauth2 %s: %w", g.name, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s %s: %d %s", ErrUpstream, g.name, url, resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

func (g *Generic) ctx(ctx context.Context) context.Context {
	if g.client == nil {
		return ctx
	}
	return context.WithValue(ctx, xoauth2.HTTPClient, g.client)
}

func tokens(t *xoauth2.Token) identity.OAuth2Tokens {
	return identity.OAuth2Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func mergeScopes(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// decodeOIDC reads an OpenID Connect style profile, falling back to "id"
// when "sub" is absent.
func decodeOIDC(body []byte) (identity.OAuth2User, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return identity.OAuth2User{}, err
	}
	u := identity.OAuth2User{
		ID:    text(raw["sub"]),
		Email: text(raw["email"]),
		Name:  text(raw["name"]),
	}
	if u.ID == "" {
		u.ID = text(raw["id"])
	}
	switch v := raw["email_verified"].(type) {
	case bool:
		u.Verified = v
	case string:
		u.Verified = v == "true"
	}
	return u, nil
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
