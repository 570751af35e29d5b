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

var _ = Describe("PctChange", func() {
	It("computes simple returns with one fewer row", func() {
		df := &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5)},
			ColNames: []string{"AAPL"},
			Vals:     [][]float64{{100, 102, 101}},
		}

		returns := df.PctChange()
		Expect(returns.Len()).To(Equal(2))
		Expect(returns.Dates[0]).To(BeTemporally("==", day(4)))
		Expect(returns.Vals[0][0]).To(BeNumerically("~", 0.02, 1e-12))
		Expect(returns.Vals[0][1]).To(BeNumerically("~", -0.00980392156862745, 1e-12))
	})

	It("marks a return against a zero price as NaN", func() {
		df := &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5)},
			ColNames: []string{"X"},
			Vals:     [][]float64{{100, 0, 50}},
		}

		returns := df.PctChange()
		Expect(returns.Vals[0][0]).To(Equal(-1.0))
		Expect(math.IsNaN(returns.Vals[0][1])).To(BeTrue())
	})

	It("returns an empty frame when there are not enough rows", func() {
		df := &dataframe.DataFrame{
			Dates:    []time.Time{day(3)},
			ColNames: []string{"X"},
			Vals:     [][]float64{{100}},
		}
		Expect(df.PctChange().Len()).To(Equal(0))
	})
})

var _ = Describe("LogReturns", func() {
	It("computes log returns", func() {
		df := &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4)},
			ColNames: []string{"AAPL"},
			Vals:     [][]float64{{100, 102}},
		}

		returns := df.LogReturns()
		Expect(returns.Len()).To(Equal(1))
		Expect(returns.Vals[0][0]).To(BeNumerically("~", math.Log(1.02), 1e-12))
	})
})

var _ = Describe("CumMax", func() {
	It("tracks the running maximum", func() {
		df := &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5), day(6)},
			ColNames: []string{"AAPL"},
			Vals:     [][]float64{{100, 102, 101, 105}},
		}

		cummax := df.CumMax()
		Expect(cummax.Vals[0]).To(Equal([]float64{100, 102, 102, 105}))
	})
})

var _ = Describe("fill operations", func() {
	var df *dataframe.DataFrame

	BeforeEach(func() {
		df = &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5), day(6)},
			ColNames: []string{"X"},
			Vals:     [][]float64{{math.NaN(), 10, math.NaN(), 12}},
		}
	})

	It("forward fills interior gaps", func() {
		filled := df.ForwardFill()
		Expect(math.IsNaN(filled.Vals[0][0])).To(BeTrue())
		Expect(filled.Vals[0][2]).To(Equal(10.0))
	})

	It("back fills leading gaps", func() {
		filled := df.BackFill()
		Expect(filled.Vals[0][0]).To(Equal(10.0))
		Expect(filled.Vals[0][2]).To(Equal(12.0))
	})

	It("patches all gaps when chained", func() {
		filled := df.ForwardFill().BackFill()
		Expect(filled.Vals[0]).To(Equal([]float64{10, 10, 10, 12}))
	})
})

var _ = Describe("joins", func() {
	var (
		left  *dataframe.DataFrame
		right *dataframe.DataFrame
	)

	BeforeEach(func() {
		left = &dataframe.DataFrame{
			Dates:    []time.Time{day(3), day(4), day(5)},
			ColNames: []string{"AAPL"},
			Vals:     [][]float64{{100, 102, 101}},
		}
		right = &dataframe.DataFrame{
			Dates:    []time.Time{day(4), day(5), day(6)},
			ColNames: []string{"MSFT"},
			Vals:     [][]float64{{404, 398, 401}},
		}
	})

	Describe("InnerJoin", func() {
		It("keeps only the shared dates", func() {
			joined := dataframe.InnerJoin(left, right)
			Expect(joined.Len()).To(Equal(2))
			Expect(joined.ColNames).To(Equal([]string{"AAPL", "MSFT"}))
			Expect(joined.Vals[0]).To(Equal([]float64{102, 101}))
			Expect(joined.Vals[1]).To(Equal([]float64{404, 398}))
		})
	})

	Describe("OuterJoin", func() {
		It("unions the dates and fills gaps with NaN", func() {
			joined := dataframe.OuterJoin(left, right)
			Expect(joined.Len()).To(Equal(4))
			Expect(joined.Dates[0]).To(BeTemporally("==", day(3)))
			Expect(joined.Dates[3]).To(BeTemporally("==", day(6)))
			Expect(math.IsNaN(joined.Vals[1][0])).To(BeTrue())
			Expect(math.IsNaN(joined.Vals[0][3])).To(BeTrue())
			Expect(joined.Vals[0][1]).To(Equal(102.0))
		})
	})
})
