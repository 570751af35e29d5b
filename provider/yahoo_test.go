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
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/provider"
)

func yahooChartURL(symbol string, begin, end time.Time) string {
	return fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		symbol, begin.Unix(), end.Unix())
}

var _ = Describe("Yahoo", func() {
	var (
		ctx   context.Context
		tz    *time.Location
		begin time.Time
		end   time.Time
	)

	BeforeEach(func() {
		httpmock.Reset()
		ctx = context.Background()
		tz = common.GetTimezone()
		begin = time.Date(2025, time.March, 3, 0, 0, 0, 0, tz)
		end = time.Date(2025, time.March, 5, 0, 0, 0, 0, tz)
	})

	Context("when the chart response is well formed", func() {
		BeforeEach(func() {
			body := fmt.Sprintf(`{
				"chart": {
					"result": [{
						"meta": {"currency": "USD", "symbol": "AAPL"},
						"timestamp": [%d, %d, %d],
						"indicators": {"quote": [{"close": [100.0, null, 101.0]}]}
					}],
					"error": null
				}
			}`,
				time.Date(2025, time.March, 3, 16, 0, 0, 0, tz).Unix(),
				time.Date(2025, time.March, 4, 16, 0, 0, 0, tz).Unix(),
				time.Date(2025, time.March, 5, 16, 0, 0, 0, tz).Unix())
			httpmock.RegisterResponder("GET", yahooChartURL("AAPL", begin, end),
				httpmock.NewStringResponder(200, body))
		})

		It("returns the series and skips null closes", func() {
			yahoo := provider.NewYahoo()
			series, err := yahoo.FetchRange(ctx, "AAPL", begin, end)
			Expect(err).To(BeNil())
			Expect(series.Len()).To(Equal(2))
			Expect(series.Observations[0].Close).To(Equal(100.0))
			Expect(series.Observations[0].Currency).To(Equal("USD"))
			Expect(series.Observations[0].Date).To(BeTemporally("==", time.Date(2025, time.March, 3, 0, 0, 0, 0, tz)))
			Expect(series.Observations[1].Close).To(Equal(101.0))
		})
	})

	Context("when the listing is foreign", func() {
		It("keeps the provider reported currency", func() {
			body := fmt.Sprintf(`{
				"chart": {
					"result": [{
						"meta": {"currency": "TWD", "symbol": "2330.TW"},
						"timestamp": [%d],
						"indicators": {"quote": [{"close": [580.0]}]}
					}],
					"error": null
				}
			}`, time.Date(2025, time.March, 3, 13, 30, 0, 0, tz).Unix())
			httpmock.RegisterResponder("GET", yahooChartURL("2330.TW", begin, end),
				httpmock.NewStringResponder(200, body))

			yahoo := provider.NewYahoo()
			series, err := yahoo.FetchRange(ctx, "2330.TW", begin, end)
			Expect(err).To(BeNil())
			Expect(series.Len()).To(Equal(1))
			Expect(series.Observations[0].Currency).To(Equal("TWD"))
		})
	})

	Context("when the provider returns an error status", func() {
		DescribeTable("mapping HTTP status codes onto the error taxonomy",
			func(statusCode int, expectedKind provider.ErrKind) {
				httpmock.RegisterResponder("GET", yahooChartURL("AAPL", begin, end),
					httpmock.NewStringResponder(statusCode, `{}`))

				yahoo := provider.NewYahoo()
				_, err := yahoo.FetchRange(ctx, "AAPL", begin, end)

				var provErr *provider.ProviderError
				Expect(errors.As(err, &provErr)).To(BeTrue())
				Expect(provErr.Kind).To(Equal(expectedKind))
			},
			Entry("rate limited", 429, provider.KindRateLimited),
			Entry("not found", 404, provider.KindNotFound),
			Entry("unauthorized", 401, provider.KindAuthentication),
			Entry("forbidden", 403, provider.KindAuthentication),
			Entry("server error", 500, provider.KindTransientNetwork),
		)
	})

	Context("when the chart payload carries an error", func() {
		It("maps an unknown symbol onto not-found", func() {
			body := `{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`
			httpmock.RegisterResponder("GET", yahooChartURL("BOGUS", begin, end),
				httpmock.NewStringResponder(200, body))

			yahoo := provider.NewYahoo()
			_, err := yahoo.FetchRange(ctx, "BOGUS", begin, end)

			var provErr *provider.ProviderError
			Expect(errors.As(err, &provErr)).To(BeTrue())
			Expect(provErr.Kind).To(Equal(provider.KindNotFound))
			Expect(provErr.Retryable()).To(BeFalse())
		})
	})

	Describe("FetchPrice with an explicit date", func() {
		It("returns the first trading day on or after the requested date", func() {
			date := time.Date(2025, time.March, 3, 0, 0, 0, 0, tz)
			body := fmt.Sprintf(`{
				"chart": {
					"result": [{
						"meta": {"currency": "USD", "symbol": "AAPL"},
						"timestamp": [%d, %d],
						"indicators": {"quote": [{"close": [100.0, 102.0]}]}
					}],
					"error": null
				}
			}`,
				time.Date(2025, time.March, 3, 16, 0, 0, 0, tz).Unix(),
				time.Date(2025, time.March, 4, 16, 0, 0, 0, tz).Unix())
			httpmock.RegisterResponder("GET", yahooChartURL("AAPL", date, date.AddDate(0, 0, 5)),
				httpmock.NewStringResponder(200, body))

			yahoo := provider.NewYahoo()
			obs, err := yahoo.FetchPrice(ctx, "AAPL", date)
			Expect(err).To(BeNil())
			Expect(obs.Close).To(Equal(100.0))
			Expect(obs.Date).To(BeTemporally("==", time.Date(2025, time.March, 3, 0, 0, 0, 0, tz)))
		})
	})
})
