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

package currency

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var frankfurterAPI = "https://api.frankfurter.app"

type frankfurter struct {
	client *http.Client
}

type frankfurterResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

// NewFrankfurter creates a rate source backed by the frankfurter.app
// historical exchange rate API. No credentials are required.
func NewFrankfurter() *frankfurter {
	timeout := viper.GetDuration("fetch.timeout")
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &frankfurter{
		client: &http.Client{Timeout: timeout},
	}
}

func (f *frankfurter) Rate(ctx context.Context, from, to string, date time.Time) (float64, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "frankfurter.Rate")
	defer span.End()

	subLog := log.With().Str("From", from).Str("To", to).Time("Date", date).Logger()

	reqURL := fmt.Sprintf("%s/%s?from=%s&to=%s", frankfurterAPI, date.Format(common.DateFormat), from, to)
	span.SetAttributes(attribute.KeyValue{
		Key:   "Url",
		Value: attribute.StringValue(reqURL),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "frankfurter http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{
			Key:   "StatusCode",
			Value: attribute.IntValue(resp.StatusCode),
		})
		msg := "frankfurter returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return 0, fmt.Errorf("HTTP request returned invalid status code: %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read frankfurter body"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return 0, err
	}

	rates := frankfurterResponse{}
	if err := json.Unmarshal(body, &rates); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return 0, err
	}

	rate, ok := rates.Rates[to]
	if !ok {
		return 0, fmt.Errorf("no %s rate in frankfurter response", to)
	}

	return rate, nil
}
