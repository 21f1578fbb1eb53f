package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Service proxies public exchange-rate providers with a short Redis
// cache. Providers are tried in order; the first one returning a
// positive finite rate wins. A stale cached rate is served when every
// provider fails.
type Service struct {
	client    *http.Client
	redis     *redis.Client
	providers []string
	cacheTTL  time.Duration
}

const (
	providerTimeout = 6 * time.Second
	defaultCacheTTL = 30 * time.Second

	// Stale entries survive past the freshness TTL so that a provider
	// outage degrades to "stale" instead of an error.
	staleRetention = 24 * time.Hour
)

var defaultProviders = []string{
	"https://api.frankfurter.app/latest?from={from}&to={to}",
	"https://api.exchangerate.host/convert?from={from}&to={to}&amount=1",
	"https://open.er-api.com/v6/latest/{from}",
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

var (
	ErrBadCurrency   = errors.New("invalid currency code")
	ErrAllProviders  = errors.New("all rate providers failed")
	ErrNoCachedValue = errors.New("no cached rate available")
)

// Rate is one resolved currency pair quote.
type Rate struct {
	Pair      string    `json:"pair"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rate      float64   `json:"rate"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt"`
	Cached    bool      `json:"cached"`
	Stale     bool      `json:"stale"`
}

type cacheEntry struct {
	Rate      float64   `json:"rate"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

func NewService(redisClient *redis.Client) *Service {
	return &Service{
		client:    &http.Client{Timeout: providerTimeout},
		redis:     redisClient,
		providers: defaultProviders,
		cacheTTL:  defaultCacheTTL,
	}
}

// Lookup resolves the from→to rate, serving a fresh cached value when
// one exists and falling back to a stale one when providers are down.
func (s *Service) Lookup(ctx context.Context, from, to string) (*Rate, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !currencyPattern.MatchString(from) || !currencyPattern.MatchString(to) {
		return nil, ErrBadCurrency
	}

	pair := from + "_" + to
	if from == to {
		return &Rate{
			Pair: pair, From: from, To: to,
			Rate: 1, Source: "system",
			FetchedAt: time.Now().UTC(), Cached: true,
		}, nil
	}

	if entry, err := s.cached(ctx, pair); err == nil {
		if time.Since(entry.FetchedAt) < s.cacheTTL {
			return &Rate{
				Pair: pair, From: from, To: to,
				Rate: entry.Rate, Source: entry.Source,
				FetchedAt: entry.FetchedAt, Cached: true,
			}, nil
		}
	}

	rate, source, err := s.fetch(ctx, from, to)
	if err != nil {
		if entry, cacheErr := s.cached(ctx, pair); cacheErr == nil {
			return &Rate{
				Pair: pair, From: from, To: to,
				Rate: entry.Rate, Source: entry.Source,
				FetchedAt: entry.FetchedAt, Cached: true, Stale: true,
			}, nil
		}
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	s.store(ctx, pair, cacheEntry{Rate: rate, Source: source, FetchedAt: fetchedAt})

	return &Rate{
		Pair: pair, From: from, To: to,
		Rate: rate, Source: source, FetchedAt: fetchedAt,
	}, nil
}

func (s *Service) fetch(ctx context.Context, from, to string) (float64, string, error) {
	for _, template := range s.providers {
		endpoint := strings.NewReplacer(
			"{from}", url.QueryEscape(from),
			"{to}", url.QueryEscape(to),
		).Replace(template)

		rate, field, err := s.fetchOne(ctx, endpoint, to)
		if err != nil {
			log.Printf("[FX] Provider %s failed: %v", endpoint, err)
			continue
		}
		host := endpoint
		if u, parseErr := url.Parse(endpoint); parseErr == nil {
			host = u.Hostname()
		}
		return rate, fmt.Sprintf("%s (%s)", host, field), nil
	}
	return 0, "", ErrAllProviders
}

func (s *Service) fetchOne(ctx context.Context, endpoint, to string) (float64, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Rates  map[string]float64 `json:"rates"`
		Result *float64           `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, "", err
	}

	if rate, ok := payload.Rates[to]; ok && rate > 0 {
		return rate, "rates", nil
	}
	if payload.Result != nil && *payload.Result > 0 {
		return *payload.Result, "result", nil
	}
	return 0, "", errors.New("no usable rate in response")
}

func cacheKey(pair string) string {
	return "fx:" + pair
}

func (s *Service) cached(ctx context.Context, pair string) (*cacheEntry, error) {
	if s.redis == nil {
		return nil, ErrNoCachedValue
	}
	raw, err := s.redis.Get(ctx, cacheKey(pair)).Result()
	if err != nil {
		return nil, ErrNoCachedValue
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, ErrNoCachedValue
	}
	return &entry, nil
}

func (s *Service) store(ctx context.Context, pair string, entry cacheEntry) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(pair), raw, staleRetention).Err(); err != nil {
		log.Printf("[FX] Failed to cache rate for %s: %v", pair, err)
	}
}
