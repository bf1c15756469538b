package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// BreakerGetter wraps a Fetcher with one circuit breaker per mirror host, so
// a dead mirror fails fast instead of stalling every sync.
type BreakerGetter struct {
	fetcher  *Fetcher
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewBreakerGetter creates a circuit breaker wrapper for a fetcher.
func NewBreakerGetter(f *Fetcher) *BreakerGetter {
	return &BreakerGetter{
		fetcher:  f,
		breakers: make(map[string]*circuit.Breaker),
	}
}

func (b *BreakerGetter) getBreaker(host string) *circuit.Breaker {
	b.mu.RLock()
	breaker, exists := b.breakers[host]
	b.mu.RUnlock()
	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, exists := b.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})
	b.breakers[host] = breaker
	return breaker
}

// Open is Fetcher.Open behind the host's breaker. Missing resources do not
// count as mirror failures.
func (b *BreakerGetter) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host := hostOf(rawURL)
	breaker := b.getBreaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var (
		body     io.ReadCloser
		notFound error
	)
	err := breaker.Call(func() error {
		var err error
		body, err = b.fetcher.Open(ctx, rawURL)
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return body, nil
}

// Get downloads rawURL into memory behind the host's breaker.
func (b *BreakerGetter) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := b.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// States reports "open" or "closed" per host.
func (b *BreakerGetter) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string)
	for host, breaker := range b.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if parsed != nil && parsed.Scheme == "file" {
			return "file"
		}
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
