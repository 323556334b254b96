package locator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// instancePool caches the relay instances discovered from a directory
// endpoint. When discovery fails the configured static list is served
// instead, never a mix of the two.
type instancePool struct {
	class    string
	static   []string
	ttl      time.Duration
	now      func() time.Time
	discover func(ctx context.Context) ([]string, error)

	mu        sync.Mutex
	cached    []string
	fetchedAt time.Time
}

func newInstancePool(class string, static []string, ttl time.Duration, discover func(ctx context.Context) ([]string, error)) *instancePool {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &instancePool{
		class:    class,
		static:   static,
		ttl:      ttl,
		now:      time.Now,
		discover: discover,
	}
}

func (p *instancePool) instances(ctx context.Context) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cached) > 0 && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.cached
	}
	if p.discover == nil {
		return p.static
	}

	var discovered []string
	err := retry.Do(
		func() error {
			var derr error
			discovered, derr = p.discover(ctx)
			return derr
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil || len(discovered) == 0 {
		if err != nil {
			log.Printf("[locator] %s instance discovery failed, using static list: %v", p.class, err)
		}
		// Stale cache beats the static list when one exists.
		if len(p.cached) > 0 {
			return p.cached
		}
		return p.static
	}

	p.cached = discovered
	p.fetchedAt = p.now()
	log.Printf("[locator] discovered %d %s instances", len(discovered), p.class)
	return p.cached
}
