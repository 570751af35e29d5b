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
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var polygonAPI = "https://api.polygon.io"

type polygon struct {
	apikey string
	client *http.Client
}

type polygonOpenCloseResponse struct {
	Status string  `json:"status"`
	Symbol string  `json:"symbol"`
	From   string  `json:"from"`
	Close  float64 `json:"close"`
}

type polygonAggsResponse struct {
	Status       string `json:"status"`
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		Close     float64 `json:"c"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

// NewPolygon creates a Polygon.io data provider. Polygon covers US listings
// only and quotes everything in USD; missing credentials fail fast at
// construction rather than on the first call.
func NewPolygon(apikey string) (*polygon, error) {
	if apikey == "" {
		return nil, &ConfigurationError{
			Provider: "polygon",
			Reason:   "API key not provided",
		}
	}

	return &polygon{
		apikey: apikey,
		client: newHTTPClient(),
	}, nil
}

func (p *polygon) Name() string {
	return "polygon"
}

func (p *polygon) FetchPrice(ctx context.Context, symbol string, date time.Time) (*PriceObservation, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "polygon.FetchPrice")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Time("Date", date).Logger()
	clean := BaseSymbol(symbol)

	var reqURL string
	if date.IsZero() {
		reqURL = fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?adjusted=true&apiKey=%s", polygonAPI, clean, p.apikey)
	} else {
		reqURL = fmt.Sprintf("%s/v1/open-close/%s/%s?adjusted=true&apiKey=%s", polygonAPI, clean, date.Format(common.DateFormat), p.apikey)
	}

	span.SetAttributes(attribute.KeyValue{
		Key:   "Symbol",
		Value: attribute.StringValue(clean),
	})

	body, err := p.get(ctx, symbol, reqURL, subLog, span)
	if err != nil {
		return nil, err
	}

	tz := common.GetTimezone()

	if date.IsZero() {
		aggs := polygonAggsResponse{}
		if err := json.Unmarshal(body, &aggs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not unmarshal json")
			subLog.Error().Err(err).Bytes("Body", body).Msg("could not unmarshal json")
			return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
		}

		if len(aggs.Results) == 0 {
			return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
		}

		last := aggs.Results[len(aggs.Results)-1]
		day := time.UnixMilli(last.Timestamp).In(tz)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)
		return NewPriceObservation(symbol, day, last.Close, "USD")
	}

	openClose := polygonOpenCloseResponse{}
	if err := json.Unmarshal(body, &openClose); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not unmarshal json")
		subLog.Error().Err(err).Bytes("Body", body).Msg("could not unmarshal json")
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	if openClose.Status == "NOT_FOUND" || openClose.Close == 0 {
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, tz)
	return NewPriceObservation(symbol, day, openClose.Close, "USD")
}

func (p *polygon) FetchRange(ctx context.Context, symbol string, begin, end time.Time) (*PriceSeries, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "polygon.FetchRange")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Time("Begin", begin).Time("End", end).Logger()
	clean := BaseSymbol(symbol)

	reqURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		polygonAPI, clean, begin.Format(common.DateFormat), end.Format(common.DateFormat), p.apikey)

	span.SetAttributes(attribute.KeyValue{
		Key:   "Symbol",
		Value: attribute.StringValue(clean),
	})

	body, err := p.get(ctx, symbol, reqURL, subLog, span)
	if err != nil {
		return nil, err
	}

	aggs := polygonAggsResponse{}
	if err := json.Unmarshal(body, &aggs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not unmarshal json")
		subLog.Error().Err(err).Bytes("Body", body).Msg("could not unmarshal json")
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	if len(aggs.Results) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
	}

	tz := common.GetTimezone()
	observations := make([]PriceObservation, 0, len(aggs.Results))
	for _, bar := range aggs.Results {
		day := time.UnixMilli(bar.Timestamp).In(tz)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)

		obs, err := NewPriceObservation(symbol, day, bar.Close, "USD")
		if err != nil {
			subLog.Warn().Err(err).Time("Date", day).Msg("skipping bad data point")
			continue
		}
		observations = append(observations, *obs)
	}

	return NewPriceSeries(symbol, observations), nil
}

func (p *polygon) get(ctx context.Context, symbol, reqURL string, subLog zerolog.Logger, span trace.Span) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "polygon http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{
			Key:   "StatusCode",
			Value: attribute.IntValue(resp.StatusCode),
		})
		msg := "polygon returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, errFromStatus(p.Name(), symbol, resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read polygon body"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, &ProviderError{Provider: p.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	return body, nil
}
