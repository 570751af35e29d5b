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
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNoProviders = errors.New("no providers configured")
	ErrNoData      = errors.New("no data returned")
)

// ErrKind classifies a provider failure so the fetcher can decide whether to
// retry the same backend or fall through to the next one.
type ErrKind int

const (
	KindRateLimited ErrKind = iota
	KindTransientNetwork
	KindNotFound
	KindAuthentication
)

func (k ErrKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate-limited"
	case KindTransientNetwork:
		return "transient-network"
	case KindNotFound:
		return "not-found"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt against the same backend can
// succeed. Not-found and authentication failures never heal by retrying.
func (k ErrKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransientNetwork
}

// ProviderError is a classified failure from a single backend call
type ProviderError struct {
	Provider string
	Symbol   string
	Kind     ErrKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s fetch for %s failed: %s", e.Provider, e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s: %s fetch for %s failed", e.Provider, e.Kind, e.Symbol)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// errFromStatus maps an HTTP response code onto the error taxonomy
func errFromStatus(provider, symbol string, statusCode int) *ProviderError {
	kind := KindTransientNetwork
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case statusCode == http.StatusNotFound:
		kind = KindNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = KindAuthentication
	}

	return &ProviderError{
		Provider: provider,
		Symbol:   symbol,
		Kind:     kind,
		Err:      fmt.Errorf("HTTP request returned invalid status code: %d", statusCode),
	}
}

// ConfigurationError indicates a backend cannot be constructed; it is fatal
// and never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is misconfigured: %s", e.Provider, e.Reason)
}

// DataQualityError flags a bad upstream data point (non-positive price,
// duplicate date). It is logged and the point skipped; it never fails a batch.
type DataQualityError struct {
	Symbol string
	Date   time.Time
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("bad data point for %s on %s: %s", e.Symbol, e.Date.Format("2006-01-02"), e.Reason)
}

// Attempt records one failed backend call for the exhaustion history
type Attempt struct {
	Provider string
	Attempt  int
	Err      error
}

// ExhaustedError is returned when every backend in the fallback chain has
// been tried and failed for a symbol. History holds every attempt in order.
type ExhaustedError struct {
	Symbol  string
	History []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all backends exhausted for %s after %d attempts", e.Symbol, len(e.History))
}
