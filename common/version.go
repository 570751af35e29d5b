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

package common

import "fmt"

type Version struct {
	Major int
	Minor int
	Patch int
}

var CurrentVersion = Version{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

// set at build time via -ldflags
var (
	commitHash string
	buildDate  string
)

// CommitHash returns the git hash the binary was built from, if set
func CommitHash() string {
	return commitHash
}

// BuildDate returns the timestamp the binary was built at, if set
func BuildDate() string {
	return buildDate
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
