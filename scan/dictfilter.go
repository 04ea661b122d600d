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

import (
	"github.com/columnar-io/stripescan/column"
	"github.com/columnar-io/stripescan/expr"
	"github.com/columnar-io/stripescan/stripefile"
)

// dictFilterEvaluator turns predicates over dictionary-encoded string
// columns into per-code survival vectors, once per stripe, so the row path
// only does a code lookup instead of a string comparison.
//
// Evaluation runs the regular predicates against a synthetic column holding
// every dictionary value plus one trailing null, standing in for the null
// rows. Anything that cannot be evaluated fails open: the column simply gets
// no filter and the row-level evaluation remains the authority.
type dictFilterEvaluator struct {
	cols    []stripefile.ReadColumn
	preds   map[column.SlotID][]expr.Predicate
	maxRows int

	// filters is rebuilt on every stripe; dictionaries are stripe-local.
	filters map[column.SlotID]*stripefile.DictFilter
}

func newDictFilterEvaluator(cols []stripefile.ReadColumn, preds map[column.SlotID][]expr.Predicate, maxRows int) *dictFilterEvaluator {
	return &dictFilterEvaluator{cols: cols, preds: preds, maxRows: maxRows}
}

// FilterDictionary rebuilds the survival vectors for the stripe whose
// dictionaries are given. Returning true skips the stripe: some column's
// dictionary proved that no row can match.
func (e *dictFilterEvaluator) FilterDictionary(dicts map[string]*stripefile.Dictionary) bool {
	e.filters = make(map[column.SlotID]*stripefile.DictFilter, len(e.cols))
	for _, rc := range e.cols {
		d, ok := dicts[rc.Name]
		if !ok {
			continue
		}
		rows := d.Len() + 1
		if rows > e.maxRows {
			// The synthetic column must fit a batch.
			continue
		}
		keepVec, survivors, ok := e.evaluate(rc, d, rows)
		if !ok {
			continue
		}
		if survivors == 0 {
			e.filters = nil
			return true
		}
		if survivors < rows {
			e.filters[rc.Slot] = &stripefile.DictFilter{Keep: keepVec}
		}
	}
	return false
}

func (e *dictFilterEvaluator) evaluate(rc stripefile.ReadColumn, d *stripefile.Dictionary, rows int) ([]bool, int, bool) {
	b := column.NewStringBuilder(rows)
	for i := 0; i < d.Len(); i++ {
		v := d.Index(int32(i)).ByteArray()
		if rc.Kind == column.KindChar {
			v = column.TrimCharPadding(v)
		}
		b.AppendValue(v)
	}
	b.AppendNull() // stands in for null rows

	chunk := column.NewChunk()
	if err := chunk.AppendColumn(rc.Slot, b.Build(false)); err != nil {
		return nil, 0, false
	}
	keep := column.NewBitmap(rows)
	survivors, err := expr.EvaluateIntoBitmap(e.preds[rc.Slot], chunk, keep)
	if err != nil {
		return nil, 0, false
	}
	keepVec := make([]bool, rows)
	keep.Range(func(i int) { keepVec[i] = true })
	return keepVec, survivors, true
}

// Filters returns the survival vectors of the current stripe, keyed by slot.
func (e *dictFilterEvaluator) Filters() map[column.SlotID]*stripefile.DictFilter {
	return e.filters
}
