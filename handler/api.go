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

// Package handler serves cached fetch and analysis results over HTTP. A
// background refresh keeps the cache warm; requests never trigger a full
// provider crawl on their own.
package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/currency"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/nathanielng/portfolio-analyzer/portfolio"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// Handler owns the fetch pipeline and the cached results it serves
type Handler struct {
	Fetcher   *provider.Fetcher
	Converter *currency.Converter
	Analyzer  *portfolio.Analyzer
	Symbols   []string
	Benchmark string
	History   time.Duration

	locker      sync.RWMutex
	prices      map[string]*provider.PriceObservation
	report      *portfolio.RiskReport
	refreshedAt time.Time
}

// Refresh fetches current prices and rebuilds the risk report. It is run at
// startup and on the periodic schedule; partial failures keep the previous
// cached values for the symbols that failed.
func (h *Handler) Refresh(ctx context.Context) {
	subLog := log.With().Int("NumSymbols", len(h.Symbols)).Logger()
	subLog.Info().Msg("refreshing cached prices and risk report")

	results := h.Fetcher.FetchPrices(ctx, h.Symbols, time.Time{})
	prices := make(map[string]*provider.PriceObservation, len(results))
	for symbol, result := range results {
		if result.Err != nil {
			subLog.Error().Err(result.Err).Str("Symbol", symbol).Msg("could not refresh price")
			continue
		}
		obs, _ := h.Converter.ToUSD(ctx, result.Observation)
		prices[symbol] = obs
	}

	report := h.buildReport(ctx)

	h.locker.Lock()
	defer h.locker.Unlock()
	if h.prices == nil {
		h.prices = make(map[string]*provider.PriceObservation, len(prices))
	}
	for symbol, obs := range prices {
		h.prices[symbol] = obs
	}
	if report != nil {
		h.report = report
	}
	h.refreshedAt = time.Now()
}

func (h *Handler) buildReport(ctx context.Context) *portfolio.RiskReport {
	history := h.History
	if history == 0 {
		history = 365 * 24 * time.Hour
	}

	end := time.Now()
	begin := end.Add(-history)

	fetchList := h.Symbols
	if indexOf(h.Symbols, h.Benchmark) == -1 {
		fetchList = append(append([]string{}, h.Symbols...), h.Benchmark)
	}

	results := h.Fetcher.FetchHistory(ctx, fetchList, begin, end)
	seriesBySymbol := make(map[string]*provider.PriceSeries, len(results))
	for symbol, result := range results {
		if result.Err != nil {
			log.Error().Err(result.Err).Str("Symbol", symbol).Msg("could not fetch history for report")
			continue
		}
		series, _ := h.Converter.ToUSDSeries(ctx, result.Series)
		seriesBySymbol[symbol] = series
	}

	if len(seriesBySymbol) == 0 {
		return nil
	}

	// providers may return bars just outside the requested window
	prices := portfolio.PriceFrame(seriesBySymbol).Trim(begin, end)
	returns := prices.PctChange()
	market := returns.Col(h.Benchmark)

	// the benchmark is only a holding when explicitly listed
	if indexOf(h.Symbols, h.Benchmark) == -1 {
		prices = prices.Select(h.Symbols...)
		returns = returns.Select(h.Symbols...)
	}

	return h.Analyzer.GenerateRiskReport(ctx, returns, prices, market)
}

func indexOf(haystack []string, needle string) int {
	for idx, val := range haystack {
		if val == needle {
			return idx
		}
	}
	return -1
}

// Ping responds with the service version and cache age
func (h *Handler) Ping(c *fiber.Ctx) error {
	h.locker.RLock()
	defer h.locker.RUnlock()

	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     common.CurrentVersion.String(),
		"refreshedAt": h.refreshedAt,
	})
}

// GetPrices returns the cached USD-normalized spot prices
func (h *Handler) GetPrices(c *fiber.Ctx) error {
	h.locker.RLock()
	defer h.locker.RUnlock()

	if h.prices == nil {
		log.Warn().Msg("price cache not yet populated")
		return fiber.ErrServiceUnavailable
	}

	return c.JSON(h.prices)
}

// GetPrice returns the cached price for a single symbol
func (h *Handler) GetPrice(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	h.locker.RLock()
	defer h.locker.RUnlock()

	obs, ok := h.prices[symbol]
	if !ok {
		return fiber.ErrNotFound
	}

	return c.JSON(obs)
}

// GetRiskReport returns the cached risk report
func (h *Handler) GetRiskReport(c *fiber.Ctx) error {
	_, span := otel.Tracer(opentelemetry.Name).Start(c.Context(), "handler.GetRiskReport")
	defer span.End()
	span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

	h.locker.RLock()
	defer h.locker.RUnlock()

	if h.report == nil {
		log.Warn().Msg("risk report not yet computed")
		return fiber.ErrServiceUnavailable
	}

	return c.JSON(h.report)
}
