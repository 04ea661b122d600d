// Copyright The stripescan Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scan

import "github.com/columnar-io/stripescan/stripefile"

// rowFilter wires the pruner and the dictionary evaluator into the single
// callback chain the reader consults.
type rowFilter struct {
	pruner   *pruner
	dictEval *dictFilterEvaluator
}

var _ stripefile.RowFilter = (*rowFilter)(nil)

func (f *rowFilter) SetWriterTimezone(tz string) {
	f.pruner.SetWriterTimezone(tz)
}

func (f *rowFilter) FilterStripe(stripeIdx int, info stripefile.StripeInfo) bool {
	return f.pruner.FilterStripe(stripeIdx, info)
}

func (f *rowFilter) FilterRowGroup(stripeIdx, groupIdx int, stats map[string]stripefile.ColumnStatistics) bool {
	return f.pruner.FilterRowGroup(stripeIdx, groupIdx, stats)
}

func (f *rowFilter) FilterDictionary(dicts map[string]*stripefile.Dictionary) bool {
	if f.dictEval == nil {
		return false
	}
	return f.dictEval.FilterDictionary(dicts)
}
