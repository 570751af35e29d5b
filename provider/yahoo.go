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
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/goccy/go-json"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var yahooAPI = "https://query1.finance.yahoo.com"

type yahoo struct {
	client *http.Client
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahoo creates a Yahoo Finance data provider. Yahoo requires no
// credentials and quotes each symbol in its listing currency.
func NewYahoo() *yahoo {
	return &yahoo{
		client: newHTTPClient(),
	}
}

func (y *yahoo) Name() string {
	return "yahoo"
}

// FetchPrice returns the close for the requested date, or the most recent
// close when date is the zero value. Providers occasionally have no bar on
// the exact day requested (holidays); the first trading day on or after the
// requested date is returned, matching provider behavior for dated queries.
func (y *yahoo) FetchPrice(ctx context.Context, symbol string, date time.Time) (*PriceObservation, error) {
	var begin, end time.Time
	if date.IsZero() {
		end = time.Now()
		begin = end.AddDate(0, 0, -5)
	} else {
		begin = date
		end = date.AddDate(0, 0, 5)
	}

	series, err := y.FetchRange(ctx, symbol, begin, end)
	if err != nil {
		return nil, err
	}

	if series.Len() == 0 {
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
	}

	if date.IsZero() {
		obs := series.Observations[series.Len()-1]
		return &obs, nil
	}

	obs := series.Observations[0]
	return &obs, nil
}

func (y *yahoo) FetchRange(ctx context.Context, symbol string, begin, end time.Time) (*PriceSeries, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.FetchRange")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Time("Begin", begin).Time("End", end).Logger()

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		yahooAPI, url.PathEscape(symbol), begin.Unix(), end.Unix())

	span.SetAttributes(
		attribute.KeyValue{
			Key:   "Url",
			Value: attribute.StringValue(reqURL),
		},
		attribute.KeyValue{
			Key:   "Symbol",
			Value: attribute.StringValue(symbol),
		},
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	resp, err := y.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "yahoo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{
			Key:   "StatusCode",
			Value: attribute.IntValue(resp.StatusCode),
		})
		msg := "yahoo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, errFromStatus(y.Name(), symbol, resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read yahoo body"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	chart := yahooChartResponse{}
	if err := json.Unmarshal(body, &chart); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindTransientNetwork, Err: err}
	}

	if chart.Chart.Error != nil {
		kind := KindNotFound
		if chart.Chart.Error.Code == "Unauthorized" {
			kind = KindAuthentication
		}
		return nil, &ProviderError{
			Provider: y.Name(),
			Symbol:   symbol,
			Kind:     kind,
			Err:      fmt.Errorf("%s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description),
		}
	}

	if len(chart.Chart.Result) == 0 {
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, &ProviderError{Provider: y.Name(), Symbol: symbol, Kind: KindNotFound, Err: ErrNoData}
	}

	currency := result.Meta.Currency
	if currency == "" {
		currency = CurrencyForSymbol(symbol)
	}

	tz := common.GetTimezone()
	closes := result.Indicators.Quote[0].Close
	observations := make([]PriceObservation, 0, len(result.Timestamp))
	for idx, ts := range result.Timestamp {
		if idx >= len(closes) || closes[idx] == nil {
			continue
		}

		day := time.Unix(ts, 0).In(tz)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)

		obs, err := NewPriceObservation(symbol, day, *closes[idx], currency)
		if err != nil {
			subLog.Warn().Err(err).Time("Date", day).Msg("skipping bad data point")
			continue
		}
		observations = append(observations, *obs)
	}

	return NewPriceSeries(symbol, observations), nil
}
