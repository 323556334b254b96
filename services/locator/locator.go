package locator

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"previewarr/config"
)

// strategy is one way a relay class can turn a trailer key into a
// playable URL on a given instance.
type strategy struct {
	name string
	run  func(ctx context.Context, instance, videoKey string) (string, error)
}

// relayClass is a family of interchangeable relay instances sharing an
// API shape. Classes are tried strictly in order; instances within a
// class race.
type relayClass interface {
	name() string
	instances(ctx context.Context) []string
	strategies() []strategy
}

type Service struct {
	classes []relayClass
	timeout map[string]time.Duration
}

func NewService(cfg config.RelaySettings, httpc *http.Client) *Service {
	ttl := time.Duration(cfg.DiscoveryTTLMinutes) * time.Minute

	pipedTimeout := time.Duration(cfg.Piped.RequestTimeoutSec) * time.Second
	invidiousTimeout := time.Duration(cfg.Invidious.RequestTimeoutSec) * time.Second
	cobaltTimeout := time.Duration(cfg.Cobalt.RequestTimeoutSec) * time.Second

	return &Service{
		classes: []relayClass{
			newPipedRelay(cfg.Piped.DirectoryURL, cfg.Piped.StaticInstances, ttl, pipedTimeout, httpc),
			newInvidiousRelay(cfg.Invidious.DirectoryURL, cfg.Invidious.StaticInstances, ttl, invidiousTimeout, httpc),
			newCobaltRelay(cfg.Cobalt.DirectoryURL, cfg.Cobalt.StaticInstances, ttl, cobaltTimeout, httpc),
		},
		timeout: map[string]time.Duration{
			"piped":     pipedTimeout,
			"invidious": invidiousTimeout,
			"cobalt":    cobaltTimeout,
		},
	}
}

// Locate walks the relay classes in order and returns the first
// playable URL found for the trailer key, along with the class that
// produced it. Exhausting every class is not an error; the caller gets
// an empty URL and decides what that means.
func (s *Service) Locate(ctx context.Context, videoKey string) (url, relay string, err error) {
	if videoKey == "" {
		return "", "", nil
	}

	for _, class := range s.classes {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}

		instances := class.instances(ctx)
		if len(instances) == 0 {
			log.Printf("[locator] no %s instances available", class.name())
			continue
		}

		for _, strat := range class.strategies() {
			found := s.raceInstances(ctx, class.name(), strat, instances, videoKey)
			if found != "" {
				log.Printf("[locator] resolved %s via %s/%s", videoKey, class.name(), strat.name)
				return found, class.name(), nil
			}
		}
		log.Printf("[locator] %s exhausted for %s", class.name(), videoKey)
	}

	return "", "", nil
}

// raceInstances fans one strategy out to every instance at once and
// takes the first success, cancelling the rest.
func (s *Service) raceInstances(ctx context.Context, className string, strat strategy, instances []string, videoKey string) string {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeout := s.timeout[className]
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	results := make(chan string, len(instances))
	var wg sync.WaitGroup

	for _, instance := range instances {
		wg.Add(1)
		go func(instance string) {
			defer wg.Done()

			attemptCtx, cancelAttempt := context.WithTimeout(raceCtx, timeout)
			defer cancelAttempt()

			url, err := strat.run(attemptCtx, instance, videoKey)
			if err != nil {
				if raceCtx.Err() == nil {
					log.Printf("[locator] %s/%s attempt on %s failed: %v", className, strat.name, instance, err)
				}
				return
			}
			select {
			case results <- url:
			default:
			}
		}(instance)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for url := range results {
		if url != "" {
			cancel()
			return url
		}
	}
	return ""
}
