// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 60 * time.Second
)

// SleepFunc waits for the backoff delay; it returns early with the context
// error when the caller cancels. Tests inject a recorder here to assert the
// exact retry schedule without waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher tries an ordered chain of backends with exponential backoff.
// Retryable failures (rate-limited, transient-network) are retried against
// the same backend up to maxRetries total attempts; anything else falls
// through to the next backend immediately. First success wins.
type Fetcher struct {
	providers  []Provider
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      SleepFunc
	workers    int
}

type FetcherOption func(*Fetcher)

func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

func WithBaseDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

func WithMaxDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxDelay = d
	}
}

func WithSleep(sleep SleepFunc) FetcherOption {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithWorkers sets how many symbols are fetched concurrently in batch
// requests. The default of 1 keeps calls serialized because provider rate
// limits, not CPU, are the bottleneck.
func WithWorkers(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

func NewFetcher(providers []Provider, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		providers:  providers,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		sleep:      sleepContext,
		workers:    1,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// backoffDelay computes min(baseDelay * 2^attempt, maxDelay). The sequence
// for the defaults is 1s, 2s, 4s, ... capped at 60s.
func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	delay := f.baseDelay
	for ii := 0; ii < attempt; ii++ {
		delay *= 2
		if delay >= f.maxDelay {
			return f.maxDelay
		}
	}
	if delay > f.maxDelay {
		return f.maxDelay
	}
	return delay
}

// do runs the retry/fallback state machine for a single logical request. op
// performs one backend call and reports its error; the machine decides
// whether to retry, fall through, or give up.
func (f *Fetcher) do(ctx context.Context, symbol string, op func(Provider) error) error {
	if len(f.providers) == 0 {
		return ErrNoProviders
	}

	history := make([]Attempt, 0, len(f.providers)*f.maxRetries)

	for _, backend := range f.providers {
		subLog := log.With().Str("Provider", backend.Name()).Str("Symbol", symbol).Logger()

		for attempt := 0; attempt < f.maxRetries; attempt++ {
			err := op(backend)
			if err == nil {
				return nil
			}

			history = append(history, Attempt{
				Provider: backend.Name(),
				Attempt:  attempt,
				Err:      err,
			})

			var provErr *ProviderError
			if !errors.As(err, &provErr) || !provErr.Retryable() {
				subLog.Warn().Err(err).Msg("non-retryable failure; falling through to next backend")
				break
			}

			if attempt == f.maxRetries-1 {
				subLog.Warn().Err(err).Int("Attempts", f.maxRetries).Msg("retries exhausted; falling through to next backend")
				break
			}

			delay := f.backoffDelay(attempt)
			subLog.Info().Dur("Delay", delay).Int("Attempt", attempt).Msg("backing off before retry")
			if sleepErr := f.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}
	}

	return &ExhaustedError{Symbol: symbol, History: history}
}

// FetchPrice resolves a single symbol through the fallback chain. A zero
// date requests the most recent close.
func (f *Fetcher) FetchPrice(ctx context.Context, symbol string, date time.Time) (*PriceObservation, error) {
	var obs *PriceObservation
	err := f.do(ctx, symbol, func(backend Provider) error {
		var opErr error
		obs, opErr = backend.FetchPrice(ctx, symbol, date)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// FetchRange resolves a date range for a single symbol through the fallback chain
func (f *Fetcher) FetchRange(ctx context.Context, symbol string, begin, end time.Time) (*PriceSeries, error) {
	var series *PriceSeries
	err := f.do(ctx, symbol, func(backend Provider) error {
		var opErr error
		series, opErr = backend.FetchRange(ctx, symbol, begin, end)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

// Result is the per-symbol outcome of a batch spot fetch
type Result struct {
	Observation *PriceObservation
	Err         error
}

// SeriesResult is the per-symbol outcome of a batch history fetch
type SeriesResult struct {
	Series *PriceSeries
	Err    error
}

// FetchPrices resolves each symbol independently; one symbol exhausting its
// backends never aborts the rest. The result always has one entry per
// requested symbol.
func (f *Fetcher) FetchPrices(ctx context.Context, symbols []string, date time.Time) map[string]*Result {
	results := make(map[string]*Result, len(symbols))

	var locker sync.Mutex
	f.forEachSymbol(symbols, func(symbol string) {
		obs, err := f.FetchPrice(ctx, symbol, date)
		locker.Lock()
		defer locker.Unlock()
		results[symbol] = &Result{Observation: obs, Err: err}
	})

	return results
}

// FetchHistory resolves a history range for each symbol independently
func (f *Fetcher) FetchHistory(ctx context.Context, symbols []string, begin, end time.Time) map[string]*SeriesResult {
	results := make(map[string]*SeriesResult, len(symbols))

	var locker sync.Mutex
	f.forEachSymbol(symbols, func(symbol string) {
		series, err := f.FetchRange(ctx, symbol, begin, end)
		locker.Lock()
		defer locker.Unlock()
		results[symbol] = &SeriesResult{Series: series, Err: err}
	})

	return results
}

// forEachSymbol fans symbols out to a bounded pool of workers. Retry and
// backoff stay serialized per symbol; only independent symbols overlap.
func (f *Fetcher) forEachSymbol(symbols []string, work func(symbol string)) {
	workers := f.workers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers <= 1 {
		for _, symbol := range symbols {
			work(symbol)
		}
		return
	}

	queue := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for ii := 0; ii < workers; ii++ {
		go func() {
			defer wg.Done()
			for symbol := range queue {
				work(symbol)
			}
		}()
	}

	for _, symbol := range symbols {
		queue <- symbol
	}
	close(queue)
	wg.Wait()
}
