package stt

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

// DispatchRequest is one transcription job handed to the dispatcher.
type DispatchRequest struct {
	Audio            []byte
	Filename         string
	Options          Options
	PreferredService string
	FallbackEnabled  bool
}

// Attempt records one provider try, successful or not.
type Attempt struct {
	Provider string
	Duration time.Duration
	Err      *ProviderError
}

// DispatchResult carries the winning outcome plus per-attempt bookkeeping.
// Exactly one provider's Result is ever authoritative; attempts from losing
// providers contribute only their timing.
type DispatchResult struct {
	Outcome  *Result
	Attempts []Attempt
	// TotalTime aggregates elapsed wall clock across every attempt.
	TotalTime time.Duration
}

// Dispatcher walks an ordered provider chain until one succeeds. Ordering
// and timeout come from explicit configuration handed in at construction,
// never from package state, so per-request overrides cannot race.
type Dispatcher struct {
	providers       map[string]Provider
	defaultService  string
	fallbackOrder   []string
	providerTimeout time.Duration
	logger          *zap.Logger
}

func NewDispatcher(providers []Provider, defaultService string, fallbackOrder []string, providerTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Dispatcher{
		providers:       byName,
		defaultService:  defaultService,
		fallbackOrder:   fallbackOrder,
		providerTimeout: providerTimeout,
		logger:          logger.Named("Dispatcher"),
	}
}

// AvailableServices lists the registered providers that are configured.
func (d *Dispatcher) AvailableServices() []string {
	names := make([]string, 0, len(d.providers))
	for _, name := range d.chainFor("") {
		if p, ok := d.providers[name]; ok && p.Configured() {
			names = append(names, name)
		}
	}
	return names
}

func (d *Dispatcher) Provider(name string) (Provider, bool) {
	p, ok := d.providers[name]
	return p, ok
}

// SupportedFormats returns the union of formats across configured providers.
func (d *Dispatcher) SupportedFormats() []string {
	seen := make(map[string]struct{})
	var formats []string
	for _, p := range d.providers {
		if !p.Configured() {
			continue
		}
		for _, f := range p.SupportedFormats() {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			formats = append(formats, f)
		}
	}
	return formats
}

// chainFor builds the attempt order: the explicit preference first, then the
// default service, then the configured fallback sequence, without
// duplicates.
func (d *Dispatcher) chainFor(preferred string) []string {
	var chain []string
	seen := make(map[string]struct{})
	push := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		if _, registered := d.providers[name]; !registered {
			return
		}
		seen[name] = struct{}{}
		chain = append(chain, name)
	}

	push(preferred)
	push(d.defaultService)
	for _, name := range d.fallbackOrder {
		push(name)
	}
	return chain
}

// Dispatch runs the fallback state machine. A retryable failure advances to
// the next provider while fallback is enabled and providers remain; a
// terminal failure, a disabled fallback, or an exhausted chain surfaces the
// last failure seen, wrapped in ierr.ErrAllProvidersFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	chain := d.chainFor(req.PreferredService)
	res := &DispatchResult{}

	var lastErr *ProviderError
	for _, name := range chain {
		provider := d.providers[name]
		if !provider.Configured() {
			d.logger.Debug("Skipping unconfigured provider", zap.String("provider", name))
			continue
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if d.providerTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.providerTimeout)
		}

		started := time.Now()
		outcome, err := provider.Transcribe(attemptCtx, req.Audio, req.Filename, req.Options)
		elapsed := time.Since(started)
		if cancel != nil {
			cancel()
		}

		res.TotalTime += elapsed

		if err == nil {
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Duration: elapsed})
			res.Outcome = outcome
			d.logger.Info("Transcription succeeded",
				zap.String("provider", name),
				zap.Int("attempt", len(res.Attempts)),
				zap.Duration("elapsed", elapsed),
			)
			return res, nil
		}

		perr := asProviderError(name, err)
		lastErr = perr
		res.Attempts = append(res.Attempts, Attempt{Provider: name, Duration: elapsed, Err: perr})

		d.logger.Warn("Provider attempt failed",
			zap.String("provider", name),
			zap.String("kind", string(perr.Kind)),
			zap.Bool("retryable", perr.Retryable),
			zap.Duration("elapsed", elapsed),
			zap.String("message", perr.Message),
		)

		if !perr.Retryable {
			break
		}
		if !req.FallbackEnabled {
			break
		}
	}

	if lastErr == nil {
		// Nothing was attempted: every registered provider is unconfigured.
		return res, newProviderError("dispatcher", KindNotConfigured, false, "no configured transcription providers")
	}
	return res, &ExhaustedError{Last: lastErr, Attempts: len(res.Attempts)}
}

// ExhaustedError terminates a dispatch without a winner. It surfaces the
// most recent provider failure since that one is closest to the final
// decision.
type ExhaustedError struct {
	Last     *ProviderError
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return ierr.ErrAllProvidersFailed.Error() + ": " + e.Last.Error()
}

func (e *ExhaustedError) Unwrap() error {
	return ierr.ErrAllProvidersFailed
}

func asProviderError(provider string, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newProviderError(provider, KindTimeout, true, "provider timed out")
	}
	return newProviderError(provider, KindVendorError, true, "%v", err)
}
