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

package dataframe

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// PctChange computes the period-over-period percent change of every column
// and returns a new dataframe with one fewer row. A zero previous value has
// no defined return; the cell is set to NaN and a warning logged.
func (df *DataFrame) PctChange() *DataFrame {
	if df.Len() < 2 {
		return &DataFrame{
			Dates:    []time.Time{},
			ColNames: df.ColNames,
			Vals:     make([][]float64, len(df.ColNames)),
		}
	}

	vals := make([][]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		vals[colIdx] = make([]float64, len(col)-1)
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			prev := col[rowIdx-1]
			if prev == 0 {
				log.Warn().Str("Column", df.ColNames[colIdx]).Time("Date", df.Dates[rowIdx]).Msg("zero price; return undefined")
				vals[colIdx][rowIdx-1] = math.NaN()
				continue
			}
			vals[colIdx][rowIdx-1] = (col[rowIdx] - prev) / prev
		}
	}

	return &DataFrame{
		Dates:    df.Dates[1:],
		ColNames: df.ColNames,
		Vals:     vals,
	}
}

// LogReturns computes ln(v_t / v_{t-1}) for every column and returns a new
// dataframe with one fewer row. Non-positive prices yield NaN.
func (df *DataFrame) LogReturns() *DataFrame {
	if df.Len() < 2 {
		return &DataFrame{
			Dates:    []time.Time{},
			ColNames: df.ColNames,
			Vals:     make([][]float64, len(df.ColNames)),
		}
	}

	vals := make([][]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		vals[colIdx] = make([]float64, len(col)-1)
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			prev := col[rowIdx-1]
			if prev <= 0 || col[rowIdx] <= 0 {
				vals[colIdx][rowIdx-1] = math.NaN()
				continue
			}
			vals[colIdx][rowIdx-1] = math.Log(col[rowIdx] / prev)
		}
	}

	return &DataFrame{
		Dates:    df.Dates[1:],
		ColNames: df.ColNames,
		Vals:     vals,
	}
}

// CumMax computes the running maximum of every column and returns a new
// dataframe. NaN cells propagate the previous maximum.
func (df *DataFrame) CumMax() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		runMax := math.NaN()
		for rowIdx, val := range df2.Vals[colIdx] {
			if !math.IsNaN(val) && (math.IsNaN(runMax) || val > runMax) {
				runMax = val
			}
			df2.Vals[colIdx][rowIdx] = runMax
		}
	}
	return df2
}

// ForwardFill replaces NaN cells with the most recent prior value in the
// column. Leading NaNs are left in place.
func (df *DataFrame) ForwardFill() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		lastValid := math.NaN()
		for rowIdx, val := range df2.Vals[colIdx] {
			if math.IsNaN(val) {
				df2.Vals[colIdx][rowIdx] = lastValid
			} else {
				lastValid = val
			}
		}
	}
	return df2
}

// BackFill replaces NaN cells with the next later value in the column.
// Trailing NaNs are left in place.
func (df *DataFrame) BackFill() *DataFrame {
	df2 := df.Copy()
	for colIdx := range df2.Vals {
		nextValid := math.NaN()
		for rowIdx := len(df2.Vals[colIdx]) - 1; rowIdx >= 0; rowIdx-- {
			val := df2.Vals[colIdx][rowIdx]
			if math.IsNaN(val) {
				df2.Vals[colIdx][rowIdx] = nextValid
			} else {
				nextValid = val
			}
		}
	}
	return df2
}

// InnerJoin combines the dataframes keeping only the dates present in every
// input. Column names must be unique across inputs.
func InnerJoin(dfs ...*DataFrame) *DataFrame {
	if len(dfs) == 0 {
		return New()
	}
	if len(dfs) == 1 {
		return dfs[0].Copy()
	}

	counts := make(map[time.Time]int)
	for _, df := range dfs {
		for _, dt := range df.Dates {
			counts[dt]++
		}
	}

	// preserve the first frame's date order
	dates := make([]time.Time, 0, len(dfs[0].Dates))
	for _, dt := range dfs[0].Dates {
		if counts[dt] == len(dfs) {
			dates = append(dates, dt)
		}
	}

	res := &DataFrame{
		Dates:    dates,
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	for _, df := range dfs {
		rowByDate := make(map[time.Time]int, len(df.Dates))
		for idx, dt := range df.Dates {
			rowByDate[dt] = idx
		}

		for colIdx, colName := range df.ColNames {
			col := make([]float64, len(dates))
			for idx, dt := range dates {
				col[idx] = df.Vals[colIdx][rowByDate[dt]]
			}
			res.ColNames = append(res.ColNames, colName)
			res.Vals = append(res.Vals, col)
		}
	}

	return res
}

// OuterJoin combines the dataframes over the union of their dates. Cells
// with no observation are NaN; callers typically follow with ForwardFill and
// BackFill to patch listing gaps.
func OuterJoin(dfs ...*DataFrame) *DataFrame {
	if len(dfs) == 0 {
		return New()
	}

	seen := make(map[time.Time]bool)
	dates := make([]time.Time, 0)
	for _, df := range dfs {
		for _, dt := range df.Dates {
			if !seen[dt] {
				seen[dt] = true
				dates = append(dates, dt)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	res := &DataFrame{
		Dates:    dates,
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	for _, df := range dfs {
		rowByDate := make(map[time.Time]int, len(df.Dates))
		for idx, dt := range df.Dates {
			rowByDate[dt] = idx
		}

		for colIdx, colName := range df.ColNames {
			col := make([]float64, len(dates))
			for idx, dt := range dates {
				if rowIdx, ok := rowByDate[dt]; ok {
					col[idx] = df.Vals[colIdx][rowIdx]
				} else {
					col[idx] = math.NaN()
				}
			}
			res.ColNames = append(res.ColNames, colName)
			res.Vals = append(res.Vals, col)
		}
	}

	return res
}
