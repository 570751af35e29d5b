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
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nathanielng/portfolio-analyzer/provider"
)

var _ = Describe("PriceObservation", func() {
	var day time.Time

	BeforeEach(func() {
		day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	})

	Context("when the price is valid", func() {
		It("creates the observation", func() {
			obs, err := provider.NewPriceObservation("AAPL", day, 187.23, "USD")
			Expect(err).To(BeNil())
			Expect(obs.Symbol).To(Equal("AAPL"))
			Expect(obs.Close).To(Equal(187.23))
			Expect(obs.Currency).To(Equal("USD"))
		})
	})

	Context("when the price is not positive", func() {
		It("rejects a zero price", func() {
			_, err := provider.NewPriceObservation("AAPL", day, 0, "USD")
			var dqErr *provider.DataQualityError
			Expect(errors.As(err, &dqErr)).To(BeTrue())
		})

		It("rejects a negative price", func() {
			_, err := provider.NewPriceObservation("AAPL", day, -3.5, "USD")
			var dqErr *provider.DataQualityError
			Expect(errors.As(err, &dqErr)).To(BeTrue())
		})
	})

	Context("when no currency is supplied", func() {
		DescribeTable("inferring currency from the exchange suffix",
			func(symbol string, expected string) {
				obs, err := provider.NewPriceObservation(symbol, day, 100, "")
				Expect(err).To(BeNil())
				Expect(obs.Currency).To(Equal(expected))
			},
			Entry("taiwan listing", "2330.TW", "TWD"),
			Entry("london listing", "SHEL.L", "GBP"),
			Entry("tokyo listing", "7203.T", "JPY"),
			Entry("toronto listing", "SHOP.TO", "CAD"),
			Entry("frankfurt listing", "SAP.DE", "EUR"),
			Entry("no suffix defaults to USD", "AAPL", "USD"),
			Entry("unknown suffix defaults to USD", "FOO.ZZ", "USD"),
		)
	})
})

var _ = Describe("PriceSeries", func() {
	var (
		day1 time.Time
		day2 time.Time
		day3 time.Time
	)

	BeforeEach(func() {
		day1 = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
		day2 = time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
		day3 = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
	})

	It("sorts observations by date", func() {
		series := provider.NewPriceSeries("AAPL", []provider.PriceObservation{
			{Symbol: "AAPL", Date: day3, Close: 103, Currency: "USD"},
			{Symbol: "AAPL", Date: day1, Close: 101, Currency: "USD"},
			{Symbol: "AAPL", Date: day2, Close: 102, Currency: "USD"},
		})

		Expect(series.Len()).To(Equal(3))
		Expect(series.Dates()).To(Equal([]time.Time{day1, day2, day3}))
		Expect(series.Closes()).To(Equal([]float64{101, 102, 103}))
	})

	It("drops duplicate dates keeping the first observation", func() {
		series := provider.NewPriceSeries("AAPL", []provider.PriceObservation{
			{Symbol: "AAPL", Date: day1, Close: 101, Currency: "USD"},
			{Symbol: "AAPL", Date: day1, Close: 999, Currency: "USD"},
			{Symbol: "AAPL", Date: day2, Close: 102, Currency: "USD"},
		})

		Expect(series.Len()).To(Equal(2))
		Expect(series.Closes()).To(Equal([]float64{101, 102}))
	})
})

var _ = Describe("BaseSymbol", func() {
	DescribeTable("stripping recognized exchange suffixes",
		func(symbol string, expected string) {
			Expect(provider.BaseSymbol(symbol)).To(Equal(expected))
		},
		Entry("taiwan listing", "2330.TW", "2330"),
		Entry("no suffix", "AAPL", "AAPL"),
		Entry("unknown suffix is preserved", "FOO.ZZ", "FOO.ZZ"),
	)
})
