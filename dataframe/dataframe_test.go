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

package dataframe_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nathanielng/portfolio-analyzer/dataframe"
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("DataFrame", func() {
	var df *dataframe.DataFrame

	BeforeEach(func() {
		df = &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5)},
			ColNames: []string{"AAPL", "MSFT"},
			Vals: [][]float64{
				{100, 102, 101},
				{400, 404, 398},
			},
		}
	})

	Describe("basic accessors", func() {
		It("reports dimensions", func() {
			Expect(df.Len()).To(Equal(3))
			Expect(df.ColCount()).To(Equal(2))
		})

		It("finds columns by name", func() {
			Expect(df.ColIndex("MSFT")).To(Equal(1))
			Expect(df.ColIndex("GOOG")).To(Equal(-1))
			Expect(df.Col("AAPL")).To(Equal([]float64{100, 102, 101}))
			Expect(df.Col("GOOG")).To(BeNil())
		})

		It("reports the date range", func() {
			Expect(df.Start()).To(BeTemporally("==", day(3)))
			Expect(df.End()).To(BeTemporally("==", day(5)))
		})
	})

	Describe("Copy", func() {
		It("is independent of the original", func() {
			df2 := df.Copy()
			df2.Vals[0][0] = 999
			Expect(df.Vals[0][0]).To(Equal(100.0))
		})
	})

	Describe("Last", func() {
		It("keeps only the final row", func() {
			last := df.Last()
			Expect(last.Len()).To(Equal(1))
			Expect(last.Vals[0][0]).To(Equal(101.0))
			Expect(last.Vals[1][0]).To(Equal(398.0))
		})
	})

	Describe("Trim", func() {
		It("keeps rows inside the range inclusive", func() {
			trimmed := df.Trim(day(4), day(5))
			Expect(trimmed.Len()).To(Equal(2))
			Expect(trimmed.Vals[0]).To(Equal([]float64{102, 101}))
		})

		It("returns an empty frame for a disjoint range", func() {
			trimmed := df.Trim(day(10), day(20))
			Expect(trimmed.Len()).To(Equal(0))
		})

		It("returns an empty frame for an inverted range", func() {
			trimmed := df.Trim(day(5), day(3))
			Expect(trimmed.Len()).To(Equal(0))
		})
	})

	Describe("Drop", func() {
		It("removes rows containing NaN in any column", func() {
			df.Vals[1][1] = math.NaN()
			df.Drop(math.NaN())
			Expect(df.Len()).To(Equal(2))
			Expect(df.Vals[0]).To(Equal([]float64{100, 101}))
		})
	})

	Describe("InsertRow", func() {
		It("appends a row after the last date", func() {
			df.InsertRow(day(6), 103, 401)
			Expect(df.Len()).To(Equal(4))
			Expect(df.Vals[0][3]).To(Equal(103.0))
		})
	})
})
