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

// Package csvio reads holdings and writes analysis artifacts as CSV files.
// Floats are written with strconv's shortest round-trip formatting so a
// written report re-reads to numerically identical values.
package csvio

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/dataframe"
	"github.com/nathanielng/portfolio-analyzer/portfolio"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/rs/zerolog/log"
)

// Holding is one row of the stocks input file
type Holding struct {
	Symbol  string
	Company string
}

// ReadStocks loads the holdings file. The expected header is
// Symbol,Company; extra columns are ignored and blank symbols skipped.
func ReadStocks(path string) ([]Holding, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header row", path)
	}

	holdings := make([]Holding, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) == 0 || record[0] == "" {
			continue
		}
		holding := Holding{Symbol: record[0]}
		if len(record) > 1 {
			holding.Company = record[1]
		}
		holdings = append(holdings, holding)
	}

	return holdings, nil
}

// Symbols returns the symbol of each holding, in file order
func Symbols(holdings []Holding) []string {
	symbols := make([]string, 0, len(holdings))
	for _, holding := range holdings {
		symbols = append(symbols, holding.Symbol)
	}
	return symbols
}

func createWithDirs(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteSpotPrices writes one row per observation with the compact yyyymmdd
// date format. Symbols are written in sorted order.
func WriteSpotPrices(path string, observations map[string]*provider.PriceObservation) error {
	fh, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	symbols := make([]string, 0, len(observations))
	for symbol := range observations {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	writer := csv.NewWriter(fh)
	if err := writer.Write([]string{"Symbol", "Date", "Price", "Currency"}); err != nil {
		return err
	}

	for _, symbol := range symbols {
		obs := observations[symbol]
		if obs == nil {
			continue
		}
		record := []string{
			obs.Symbol,
			obs.Date.Format(common.CompactDateFormat),
			formatFloat(obs.Close),
			obs.Currency,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFrame writes a date-indexed dataframe with a Date first column;
// NaN cells are written as empty fields.
func WriteFrame(path string, df *dataframe.DataFrame) error {
	fh, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	writer := csv.NewWriter(fh)
	header := append([]string{"Date"}, df.ColNames...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for rowIdx, date := range df.Dates {
		record := make([]string, 0, len(df.ColNames)+1)
		record = append(record, date.Format(common.DateFormat))
		for colIdx := range df.ColNames {
			val := df.Vals[colIdx][rowIdx]
			if math.IsNaN(val) {
				record = append(record, "")
			} else {
				record = append(record, formatFloat(val))
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCorrelation writes the symmetric matrix with symbols as both the
// header row and the first column.
func WriteCorrelation(path string, matrix *portfolio.CorrelationMatrix) error {
	fh, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	writer := csv.NewWriter(fh)
	header := append([]string{""}, matrix.Symbols...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for ii, symbol := range matrix.Symbols {
		record := make([]string, 0, len(matrix.Symbols)+1)
		record = append(record, symbol)
		for jj := range matrix.Symbols {
			record = append(record, formatFloat(matrix.Values[ii][jj]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteRiskReport writes one row per symbol and one column per metric name.
// NaN and Inf survive the round trip because strconv parses the tokens it
// formats.
func WriteRiskReport(path string, report *portfolio.RiskReport) error {
	fh, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	writer := csv.NewWriter(fh)
	header := append([]string{"Symbol"}, portfolio.MetricNames...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, symbol := range report.Symbols {
		metrics := report.Metrics[symbol]
		record := make([]string, 0, len(portfolio.MetricNames)+1)
		record = append(record, symbol)
		for _, name := range portfolio.MetricNames {
			record = append(record, formatFloat(metrics[name]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadRiskReport loads a previously written risk report. Only the per-symbol
// metrics are recoverable from the CSV; correlation and run parameters live
// in their own artifacts.
func ReadRiskReport(path string) (*portfolio.RiskReport, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header row", path)
	}

	header := records[0]
	report := &portfolio.RiskReport{
		Symbols: make([]string, 0, len(records)-1),
		Metrics: make(map[string]map[string]float64, len(records)-1),
	}

	for _, record := range records[1:] {
		if len(record) != len(header) {
			log.Warn().Str("Symbol", record[0]).Msg("skipping malformed risk report row")
			continue
		}

		metrics := make(map[string]float64, len(header)-1)
		for idx := 1; idx < len(header); idx++ {
			val, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value for %s/%s: %w", path, record[0], header[idx], err)
			}
			metrics[header[idx]] = val
		}

		report.Symbols = append(report.Symbols, record[0])
		report.Metrics[record[0]] = metrics
	}

	return report, nil
}
