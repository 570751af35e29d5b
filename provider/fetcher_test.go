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

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/provider"
)

// scripted is a backend that fails with the scripted errors in order and
// then succeeds.
type scripted struct {
	name   string
	errs   []error
	locker sync.Mutex
	calls  int
}

func (s *scripted) Name() string {
	return s.name
}

func (s *scripted) observation(symbol string) *provider.PriceObservation {
	return &provider.PriceObservation{
		Symbol:   symbol,
		Date:     time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Close:    100,
		Currency: "USD",
	}
}

func (s *scripted) FetchPrice(_ context.Context, symbol string, _ time.Time) (*provider.PriceObservation, error) {
	s.locker.Lock()
	call := s.calls
	s.calls++
	s.locker.Unlock()
	if call < len(s.errs) {
		return nil, s.errs[call]
	}
	return s.observation(symbol), nil
}

func (s *scripted) FetchRange(_ context.Context, symbol string, _, _ time.Time) (*provider.PriceSeries, error) {
	s.locker.Lock()
	call := s.calls
	s.calls++
	s.locker.Unlock()
	if call < len(s.errs) {
		return nil, s.errs[call]
	}
	return provider.NewPriceSeries(symbol, []provider.PriceObservation{*s.observation(symbol)}), nil
}

func rateLimited(name string) *provider.ProviderError {
	return &provider.ProviderError{Provider: name, Symbol: "AAPL", Kind: provider.KindRateLimited, Err: errors.New("429")}
}

func notFound(name string) *provider.ProviderError {
	return &provider.ProviderError{Provider: name, Symbol: "AAPL", Kind: provider.KindNotFound, Err: provider.ErrNoData}
}

var _ = Describe("Fetcher", func() {
	var (
		ctx    context.Context
		sleeps []time.Duration
		sleep  provider.SleepFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		sleeps = []time.Duration{}
		sleep = func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}
	})

	Context("with a single backend", func() {
		It("returns the price on first success without sleeping", func() {
			backend := &scripted{name: "primary"}
			fetcher := provider.NewFetcher([]provider.Provider{backend}, provider.WithSleep(sleep))

			obs, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(BeNil())
			Expect(obs.Close).To(Equal(100.0))
			Expect(backend.calls).To(Equal(1))
			Expect(sleeps).To(BeEmpty())
		})

		It("retries retryable failures with exponential backoff", func() {
			backend := &scripted{name: "primary", errs: []error{rateLimited("primary"), rateLimited("primary")}}
			fetcher := provider.NewFetcher([]provider.Provider{backend}, provider.WithSleep(sleep))

			obs, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(BeNil())
			Expect(obs).NotTo(BeNil())
			Expect(backend.calls).To(Equal(3))
			Expect(sleeps).To(Equal([]time.Duration{1 * time.Second, 2 * time.Second}))
		})

		It("caps the backoff delay at the maximum", func() {
			errs := make([]error, 7)
			for idx := range errs {
				errs[idx] = rateLimited("primary")
			}
			backend := &scripted{name: "primary", errs: errs}
			fetcher := provider.NewFetcher([]provider.Provider{backend},
				provider.WithSleep(sleep), provider.WithMaxRetries(8))

			_, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(BeNil())
			Expect(sleeps).To(Equal([]time.Duration{
				1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
				16 * time.Second, 32 * time.Second, 60 * time.Second,
			}))
		})

		It("stops retrying when the context is cancelled", func() {
			backend := &scripted{name: "primary", errs: []error{rateLimited("primary"), rateLimited("primary")}}
			fetcher := provider.NewFetcher([]provider.Provider{backend},
				provider.WithSleep(func(ctx context.Context, _ time.Duration) error {
					return context.Canceled
				}))

			_, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(MatchError(context.Canceled))
			Expect(backend.calls).To(Equal(1))
		})
	})

	Context("with a fallback chain", func() {
		It("falls through to the next backend after exhausting retries", func() {
			primary := &scripted{name: "primary", errs: []error{
				rateLimited("primary"), rateLimited("primary"), rateLimited("primary"),
			}}
			secondary := &scripted{name: "secondary"}
			fetcher := provider.NewFetcher([]provider.Provider{primary, secondary}, provider.WithSleep(sleep))

			obs, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(BeNil())
			Expect(obs).NotTo(BeNil())
			Expect(primary.calls).To(Equal(3))
			Expect(secondary.calls).To(Equal(1))
			Expect(sleeps).To(Equal([]time.Duration{1 * time.Second, 2 * time.Second}))
		})

		It("falls through immediately on a non-retryable failure", func() {
			primary := &scripted{name: "primary", errs: []error{notFound("primary")}}
			secondary := &scripted{name: "secondary"}
			fetcher := provider.NewFetcher([]provider.Provider{primary, secondary}, provider.WithSleep(sleep))

			obs, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(BeNil())
			Expect(obs).NotTo(BeNil())
			Expect(primary.calls).To(Equal(1))
			Expect(secondary.calls).To(Equal(1))
			Expect(sleeps).To(BeEmpty())
		})

		It("returns an exhausted error with the full attempt history", func() {
			primary := &scripted{name: "primary", errs: []error{
				rateLimited("primary"), rateLimited("primary"), rateLimited("primary"),
			}}
			secondary := &scripted{name: "secondary", errs: []error{notFound("secondary")}}
			fetcher := provider.NewFetcher([]provider.Provider{primary, secondary}, provider.WithSleep(sleep))

			_, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})

			var exhausted *provider.ExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue())
			Expect(exhausted.Symbol).To(Equal("AAPL"))
			Expect(exhausted.History).To(HaveLen(4))
			Expect(exhausted.History[0].Provider).To(Equal("primary"))
			Expect(exhausted.History[3].Provider).To(Equal("secondary"))
		})
	})

	Context("with real provider adapters", func() {
		It("retries a rate limited polygon and falls back to yahoo", func() {
			httpmock.Reset()

			tz := common.GetTimezone()
			date := time.Date(2025, time.March, 3, 0, 0, 0, 0, tz)

			polygonURL := "https://api.polygon.io/v1/open-close/AAPL/2025-03-03?adjusted=true&apiKey=TEST"
			httpmock.RegisterResponder("GET", polygonURL,
				httpmock.NewStringResponder(429, `{"status": "ERROR"}`))

			yahooURL := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/AAPL?period1=%d&period2=%d&interval=1d&events=history",
				date.Unix(), date.AddDate(0, 0, 5).Unix())
			body := fmt.Sprintf(`{
				"chart": {
					"result": [{
						"meta": {"currency": "USD", "symbol": "AAPL"},
						"timestamp": [%d],
						"indicators": {"quote": [{"close": [238.03]}]}
					}],
					"error": null
				}
			}`, time.Date(2025, time.March, 3, 16, 0, 0, 0, tz).Unix())
			httpmock.RegisterResponder("GET", yahooURL,
				httpmock.NewStringResponder(200, body))

			polygon, err := provider.NewPolygon("TEST")
			Expect(err).To(BeNil())
			fetcher := provider.NewFetcher([]provider.Provider{polygon, provider.NewYahoo()},
				provider.WithSleep(sleep))

			obs, err := fetcher.FetchPrice(ctx, "AAPL", date)
			Expect(err).To(BeNil())
			Expect(obs.Close).To(Equal(238.03))

			info := httpmock.GetCallCountInfo()
			Expect(info["GET "+polygonURL]).To(Equal(3))
			Expect(info["GET "+yahooURL]).To(Equal(1))
			Expect(sleeps).To(Equal([]time.Duration{1 * time.Second, 2 * time.Second}))
		})
	})

	Context("with no backends", func() {
		It("fails immediately", func() {
			fetcher := provider.NewFetcher([]provider.Provider{})
			_, err := fetcher.FetchPrice(ctx, "AAPL", time.Time{})
			Expect(err).To(MatchError(provider.ErrNoProviders))
		})
	})

	Describe("batch fetches", func() {
		It("isolates failures per symbol", func() {
			backend := &failFirstSymbol{fail: "MSFT"}
			fetcher := provider.NewFetcher([]provider.Provider{backend}, provider.WithSleep(sleep))

			results := fetcher.FetchPrices(ctx, []string{"AAPL", "MSFT", "GOOG"}, time.Time{})
			Expect(results).To(HaveLen(3))
			Expect(results["AAPL"].Err).To(BeNil())
			Expect(results["GOOG"].Err).To(BeNil())

			var exhausted *provider.ExhaustedError
			Expect(errors.As(results["MSFT"].Err, &exhausted)).To(BeTrue())
		})

		It("fetches history for each symbol", func() {
			backend := &scripted{name: "primary"}
			fetcher := provider.NewFetcher([]provider.Provider{backend}, provider.WithSleep(sleep))

			results := fetcher.FetchHistory(ctx, []string{"AAPL", "MSFT"},
				time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
			Expect(results).To(HaveLen(2))
			Expect(results["AAPL"].Err).To(BeNil())
			Expect(results["AAPL"].Series.Len()).To(Equal(1))
		})

		It("runs symbols through a worker pool when configured", func() {
			backend := &scripted{name: "primary"}
			fetcher := provider.NewFetcher([]provider.Provider{backend},
				provider.WithSleep(sleep), provider.WithWorkers(4))

			results := fetcher.FetchPrices(ctx, []string{"AAPL", "MSFT", "GOOG", "AMZN", "META"}, time.Time{})
			Expect(results).To(HaveLen(5))
			for _, result := range results {
				Expect(result.Err).To(BeNil())
			}
		})
	})
})

// failFirstSymbol always fails one symbol with a not-found error and
// succeeds for everything else.
type failFirstSymbol struct {
	fail string
}

func (f *failFirstSymbol) Name() string {
	return "flaky"
}

func (f *failFirstSymbol) FetchPrice(_ context.Context, symbol string, _ time.Time) (*provider.PriceObservation, error) {
	if symbol == f.fail {
		return nil, notFound("flaky")
	}
	return &provider.PriceObservation{
		Symbol:   symbol,
		Date:     time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Close:    100,
		Currency: "USD",
	}, nil
}

func (f *failFirstSymbol) FetchRange(ctx context.Context, symbol string, _, _ time.Time) (*provider.PriceSeries, error) {
	obs, err := f.FetchPrice(ctx, symbol, time.Time{})
	if err != nil {
		return nil, err
	}
	return provider.NewPriceSeries(symbol, []provider.PriceObservation{*obs}), nil
}
