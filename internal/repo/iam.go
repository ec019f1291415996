package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/miradorstack/incident-autopilot/internal/cache"
	"github.com/miradorstack/incident-autopilot/internal/metrics"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

const (
	iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"
	// tokenEarlyExpiry keeps cached tokens from being handed out right
	// before the identity service rejects them.
	tokenEarlyExpiry = time.Minute
)

// IAMTokenSource exchanges an API key for a bearer token. Tokens are shared
// through the cache provider so several gateway replicas reuse one exchange.
type IAMTokenSource struct {
	iamURL     string
	apiKey     string
	cache      cache.Provider
	cacheKey   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// NewIAMTokenSource builds an uncached token source. Wrap it with
// NewReusableTokenSource for in-process reuse.
func NewIAMTokenSource(logger *slog.Logger, iamURL, apiKey string, provider cache.Provider, timeout time.Duration) *IAMTokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	sum := sha256.Sum256([]byte(apiKey))
	return &IAMTokenSource{
		iamURL:     iamURL,
		apiKey:     apiKey,
		cache:      provider,
		cacheKey:   "iam-token:" + hex.EncodeToString(sum[:8]),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// NewReusableTokenSource returns src wrapped so that a valid token is reused
// until it expires.
func NewReusableTokenSource(src *IAMTokenSource) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, src)
}

// Token implements oauth2.TokenSource.
func (s *IAMTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	if tok, ok := s.fromCache(ctx); ok {
		metrics.ObserveTokenFetch("cache")
		return tok, nil
	}

	tok, err := s.exchange(ctx)
	if err != nil {
		return nil, utils.NewAppError("iam.token", "identity service unavailable", err)
	}
	metrics.ObserveTokenFetch("exchange")
	s.store(ctx, tok)
	return tok, nil
}

func (s *IAMTokenSource) timeout() time.Duration {
	if s.httpClient.Timeout > 0 {
		return s.httpClient.Timeout
	}
	return 30 * time.Second
}

func (s *IAMTokenSource) fromCache(ctx context.Context) (*oauth2.Token, bool) {
	data, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("iam token cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("iam token cache entry corrupt", slog.Any("error", err))
		s.evict(ctx)
		return nil, false
	}
	if cached.AccessToken == "" || !s.now().Add(tokenEarlyExpiry).Before(cached.Expiry) {
		s.evict(ctx)
		return nil, false
	}
	return &oauth2.Token{AccessToken: cached.AccessToken, TokenType: cached.TokenType, Expiry: cached.Expiry}, true
}

// evict drops a shared entry no replica should hand out again.
func (s *IAMTokenSource) evict(ctx context.Context) {
	if err := s.cache.Del(ctx, s.cacheKey); err != nil {
		s.logger.Warn("iam token cache evict failed", slog.Any("error", err))
	}
}

func (s *IAMTokenSource) store(ctx context.Context, tok *oauth2.Token) {
	ttl := tok.Expiry.Sub(s.now()) - tokenEarlyExpiry
	if tok.Expiry.IsZero() || ttl <= 0 {
		return
	}
	data, err := json.Marshal(cachedToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: tok.Expiry})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey, data, ttl); err != nil {
		s.logger.Warn("iam token cache write failed", slog.Any("error", err))
	}
}

func (s *IAMTokenSource) exchange(ctx context.Context) (*oauth2.Token, error) {
	if s.iamURL == "" {
		return nil, fmt.Errorf("iam url not configured")
	}
	if s.apiKey == "" {
		return nil, fmt.Errorf("api key not configured")
	}

	form := url.Values{}
	form.Set("apikey", s.apiKey)
	form.Set("grant_type", iamGrantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.iamURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("iam returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
		Expiration  int64  `json:"expiration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode iam response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("iam response carried no access_token")
	}

	tok := &oauth2.Token{AccessToken: payload.AccessToken, TokenType: payload.TokenType}
	switch {
	case payload.Expiration > 0:
		tok.Expiry = time.Unix(payload.Expiration, 0)
	case payload.ExpiresIn > 0:
		tok.Expiry = s.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tok, nil
}
