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
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// Provider is the capability every market-data backend implements. A zero
// date on FetchPrice requests the most recent available close. New backends
// implement this interface; the resilient fetcher never changes.
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string, date time.Time) (*PriceObservation, error)
	FetchRange(ctx context.Context, symbol string, begin, end time.Time) (*PriceSeries, error)
}

// newHTTPClient builds the per-provider client. Exceeding the call timeout
// surfaces as a transient-network error subject to retry.
func newHTTPClient() *http.Client {
	timeout := viper.GetDuration("fetch.timeout")
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
