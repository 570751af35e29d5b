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

// Package currency normalizes prices quoted in foreign currencies to USD.
// Historical FX rates are fetched once per (pair, date) and cached for the
// lifetime of the process; published historical rates do not change.
package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/rs/zerolog/log"
)

const cacheSize = 4096

// RateUnavailableError is returned when an FX rate cannot be obtained after
// the retry budget is spent. Callers keep the original currency and flag the
// value as unconverted; a stale or guessed rate is never substituted.
type RateUnavailableError struct {
	From string
	To   string
	Date time.Time
	Err  error
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no %s/%s rate available for %s: %s", e.From, e.To, e.Date.Format(common.DateFormat), e.Err)
}

func (e *RateUnavailableError) Unwrap() error {
	return e.Err
}

// RateSource fetches a single historical exchange rate
type RateSource interface {
	Rate(ctx context.Context, from, to string, date time.Time) (float64, error)
}

// Converter caches exchange rates and retries the rate source with the same
// exponential backoff schedule the price fetcher uses, on an independent
// retry budget.
type Converter struct {
	source     RateSource
	cache      *lru.Cache
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      provider.SleepFunc

	locker   sync.Mutex
	inflight map[string]*sync.Mutex
}

type ConverterOption func(*Converter)

func WithMaxRetries(n int) ConverterOption {
	return func(c *Converter) {
		c.maxRetries = n
	}
}

func WithBaseDelay(d time.Duration) ConverterOption {
	return func(c *Converter) {
		c.baseDelay = d
	}
}

func WithMaxDelay(d time.Duration) ConverterOption {
	return func(c *Converter) {
		c.maxDelay = d
	}
}

func WithSleep(sleep provider.SleepFunc) ConverterOption {
	return func(c *Converter) {
		c.sleep = sleep
	}
}

func NewConverter(source RateSource, opts ...ConverterOption) *Converter {
	cache, err := lru.New(cacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size
		panic(err)
	}

	c := &Converter{
		source:     source,
		cache:      cache,
		maxRetries: provider.DefaultMaxRetries,
		baseDelay:  provider.DefaultBaseDelay,
		maxDelay:   provider.DefaultMaxDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.inflight = make(map[string]*sync.Mutex)
	return c
}

func rateKey(from, to string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", from, to, date.Format(common.DateFormat))
}

// Rate returns the from/to exchange rate for the given date, consulting the
// cache first. Concurrent requests for the same key are serialized so the
// upstream sees at most one fetch per key.
func (c *Converter) Rate(ctx context.Context, from, to string, date time.Time) (float64, error) {
	if from == to {
		return 1.0, nil
	}

	key := rateKey(from, to, date)
	if rate, ok := c.cache.Get(key); ok {
		return rate.(float64), nil
	}

	keyLock := c.keyLock(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	// another request may have populated the cache while we waited
	if rate, ok := c.cache.Get(key); ok {
		return rate.(float64), nil
	}

	rate, err := c.fetchRate(ctx, from, to, date)
	if err != nil {
		return 0, err
	}

	c.cache.Add(key, rate)
	return rate, nil
}

func (c *Converter) keyLock(key string) *sync.Mutex {
	c.locker.Lock()
	defer c.locker.Unlock()
	keyLock, ok := c.inflight[key]
	if !ok {
		keyLock = &sync.Mutex{}
		c.inflight[key] = keyLock
	}
	return keyLock
}

func (c *Converter) fetchRate(ctx context.Context, from, to string, date time.Time) (float64, error) {
	subLog := log.With().Str("From", from).Str("To", to).Time("Date", date).Logger()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		rate, err := c.source.Rate(ctx, from, to, date)
		if err == nil {
			return rate, nil
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}

		delay := c.backoffDelay(attempt)
		subLog.Info().Dur("Delay", delay).Int("Attempt", attempt).Msg("backing off before rate retry")
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return 0, sleepErr
		}
	}

	subLog.Warn().Err(lastErr).Msg("exchange rate unavailable")
	return 0, &RateUnavailableError{From: from, To: to, Date: date, Err: lastErr}
}

func (c *Converter) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for ii := 0; ii < attempt; ii++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// ToUSD converts an observation's close to USD. On success the returned
// observation is a USD copy and the bool is true. When the rate is
// unavailable the original observation is returned unchanged with false so
// downstream consumers can flag the row rather than drop it.
func (c *Converter) ToUSD(ctx context.Context, obs *provider.PriceObservation) (*provider.PriceObservation, bool) {
	if obs.Currency == "USD" {
		return obs, true
	}

	rate, err := c.Rate(ctx, obs.Currency, "USD", obs.Date)
	if err != nil {
		log.Warn().Err(err).Str("Symbol", obs.Symbol).Str("Currency", obs.Currency).Msg("keeping original currency")
		return obs, false
	}

	converted := *obs
	converted.Close = obs.Close * rate
	converted.Currency = "USD"
	return &converted, true
}

// ToUSDSeries converts every observation in a series to USD. Observations
// whose rate is unavailable are kept in their original currency; the bool is
// true only when the whole series converted.
func (c *Converter) ToUSDSeries(ctx context.Context, series *provider.PriceSeries) (*provider.PriceSeries, bool) {
	all := true
	observations := make([]provider.PriceObservation, 0, series.Len())
	for idx := range series.Observations {
		obs, ok := c.ToUSD(ctx, &series.Observations[idx])
		if !ok {
			all = false
		}
		observations = append(observations, *obs)
	}

	return &provider.PriceSeries{Symbol: series.Symbol, Observations: observations}, all
}
