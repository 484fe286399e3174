// Package delivery dispatches payloads to channels through the
// registry with best-effort or stop-on-failure semantics. Rate
// limiting uses a golang.org/x/time/rate token bucket keyed per
// channel.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

// Target is a resolved (channel, recipient) pair.
type Target struct {
	Channel string
	To      string
}

// Payload is one outbound message: text, optional media, and an
// optional id being replied to.
type Payload struct {
	Text      string
	MediaURLs []string
	ReplyToID string
}

// Result is one delivery attempt's outcome.
type Result struct {
	Success      bool
	Channel      string
	MessageID    string
	Error        string
	ErrorDetails string
}

// Options configure a delivery call.
type Options struct {
	BestEffort  bool
	AbortSignal <-chan struct{}
}

// Service dispatches payloads via a channels.Registry.
type Service struct {
	registry *channels.Registry

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewService builds a delivery service against registry. rps/burst
// configure the per-channel token bucket; rps<=0 disables limiting,
// and burst<=0 defaults to 5.
func NewService(registry *channels.Registry, rps float64, burst int) *Service {
	if burst <= 0 {
		burst = 5
	}
	return &Service{
		registry: registry,
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (s *Service) limiterFor(channelID string) *rate.Limiter {
	if s.rps <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[channelID] = l
	}
	return l
}

// ParseTarget splits "ch:to" into a Target, or falls back to
// fallbackChannel when raw carries no "ch:" prefix. The "last"
// sentinel returns a zero Target with ok=false — callers must resolve
// it against a configured default externally, ParseTarget has no
// registry access to do so itself.
func ParseTarget(raw, fallbackChannel string) (Target, bool) {
	if raw == "" {
		return Target{}, false
	}
	if raw == channels.IDLast {
		return Target{}, false
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		ch := raw[:idx]
		to := raw[idx+1:]
		if ch == channels.IDLast {
			return Target{}, false
		}
		return Target{Channel: ch, To: to}, true
	}
	if fallbackChannel == "" || fallbackChannel == channels.IDLast {
		return Target{}, false
	}
	return Target{Channel: fallbackChannel, To: raw}, true
}

func aborted(sig <-chan struct{}) bool {
	if sig == nil {
		return false
	}
	select {
	case <-sig:
		return true
	default:
		return false
	}
}

// DeliverOne sends a single payload to target.
func (s *Service) DeliverOne(ctx context.Context, target Target, payload Payload, opts Options) (Result, error) {
	if aborted(opts.AbortSignal) {
		return Result{Success: false, Channel: target.Channel, Error: "Aborted"}, nil
	}

	ch, err := s.registry.Get(target.Channel)
	if err != nil {
		if opts.BestEffort {
			return Result{Success: false, Channel: target.Channel, Error: err.Error()}, nil
		}
		return Result{}, err
	}

	if l := s.limiterFor(target.Channel); l != nil {
		if err := l.Wait(ctx); err != nil {
			if opts.BestEffort {
				return Result{Success: false, Channel: target.Channel, Error: err.Error()}, nil
			}
			return Result{}, fmt.Errorf("%w: %v", cronerr.ErrDeliveryFailed, err)
		}
	}

	res, err := ch.SendMessage(ctx, channels.SendRequest{
		ChatID:    target.To,
		Content:   payload.Text,
		ReplyToID: payload.ReplyToID,
		MediaURLs: payload.MediaURLs,
	})
	if err != nil || !res.Success {
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		if opts.BestEffort {
			return Result{Success: false, Channel: target.Channel, Error: msg}, nil
		}
		return Result{}, fmt.Errorf("%w: %s", cronerr.ErrDeliveryFailed, msg)
	}
	return Result{Success: true, Channel: target.Channel, MessageID: res.MessageID}, nil
}

// DeliverMany sends payloads in order, stopping at the first failure
// unless opts.BestEffort. abortSignal is checked before each payload;
// when it fires, a single "Aborted" result is appended and iteration
// stops.
func (s *Service) DeliverMany(ctx context.Context, target Target, payloads []Payload, opts Options) ([]Result, error) {
	results := make([]Result, 0, len(payloads))
	for _, payload := range payloads {
		if aborted(opts.AbortSignal) {
			results = append(results, Result{Success: false, Channel: target.Channel, Error: "Aborted"})
			return results, nil
		}

		res, err := s.DeliverOne(ctx, target, payload, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if !res.Success && !opts.BestEffort {
			return results, nil
		}
	}
	return results, nil
}

// DeliverOutbound resolves channel+to into a Target and delivers
// payloads through DeliverMany. An empty payloads slice returns nil
// without touching the registry.
func (s *Service) DeliverOutbound(ctx context.Context, channel, to string, payloads []Payload, opts Options) ([]Result, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	target := Target{Channel: channel, To: to}
	return s.DeliverMany(ctx, target, payloads, opts)
}
