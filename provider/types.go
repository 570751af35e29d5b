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
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// PriceObservation is a single closing price for a symbol on a calendar day.
// Observations are value types; once constructed they are never modified.
type PriceObservation struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Currency string    `json:"currency"`
}

// NewPriceObservation validates and constructs a price observation. Prices
// must be strictly positive; anything else is a data quality failure from the
// upstream provider.
func NewPriceObservation(symbol string, date time.Time, close float64, currency string) (*PriceObservation, error) {
	if close <= 0 {
		return nil, &DataQualityError{
			Symbol: symbol,
			Date:   date,
			Reason: "price must be greater than zero",
		}
	}

	if currency == "" {
		currency = CurrencyForSymbol(symbol)
	}

	return &PriceObservation{
		Symbol:   symbol,
		Date:     date,
		Close:    close,
		Currency: currency,
	}, nil
}

// PriceSeries is a date-ordered sequence of observations for one symbol.
// Missing trading days are preserved as gaps, never interpolated.
type PriceSeries struct {
	Symbol       string             `json:"symbol"`
	Observations []PriceObservation `json:"observations"`
}

// NewPriceSeries orders observations by date and drops duplicate dates. A
// duplicate is a data quality problem with the upstream feed; the first
// observation wins and the rest are logged and skipped.
func NewPriceSeries(symbol string, observations []PriceObservation) *PriceSeries {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})

	deduped := make([]PriceObservation, 0, len(observations))
	var lastDate time.Time
	for _, obs := range observations {
		if !lastDate.IsZero() && obs.Date.Equal(lastDate) {
			log.Warn().Str("Symbol", symbol).Time("Date", obs.Date).Msg("dropping duplicate date in price series")
			continue
		}
		lastDate = obs.Date
		deduped = append(deduped, obs)
	}

	return &PriceSeries{
		Symbol:       symbol,
		Observations: deduped,
	}
}

// Len returns the number of observations in the series
func (ps *PriceSeries) Len() int {
	return len(ps.Observations)
}

// Dates returns the ordered date axis of the series
func (ps *PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(ps.Observations))
	for idx, obs := range ps.Observations {
		dates[idx] = obs.Date
	}
	return dates
}

// Closes returns the ordered closing prices of the series
func (ps *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(ps.Observations))
	for idx, obs := range ps.Observations {
		closes[idx] = obs.Close
	}
	return closes
}

// currencyBySuffix maps exchange suffixes to their quote currency. Providers
// that report a currency always win; the table only covers symbols fetched
// from sources that quote everything in their home market convention.
var currencyBySuffix = map[string]string{
	"AS": "EUR",
	"AX": "AUD",
	"DE": "EUR",
	"HK": "HKD",
	"L":  "GBP",
	"PA": "EUR",
	"T":  "JPY",
	"TO": "CAD",
	"TW": "TWD",
}

// CurrencyForSymbol infers the quote currency from the exchange suffix of a
// symbol (e.g. 2330.TW trades in TWD). Symbols without a recognized suffix
// are assumed to be USD listings.
func CurrencyForSymbol(symbol string) string {
	idx := strings.LastIndex(symbol, ".")
	if idx == -1 || idx == len(symbol)-1 {
		return "USD"
	}
	if currency, ok := currencyBySuffix[strings.ToUpper(symbol[idx+1:])]; ok {
		return currency
	}
	return "USD"
}

// BaseSymbol strips the exchange suffix from a symbol for providers that only
// understand plain tickers (e.g. 2330.TW -> 2330).
func BaseSymbol(symbol string) string {
	idx := strings.LastIndex(symbol, ".")
	if idx == -1 {
		return symbol
	}
	if _, ok := currencyBySuffix[strings.ToUpper(symbol[idx+1:])]; ok {
		return symbol[:idx]
	}
	return symbol
}
