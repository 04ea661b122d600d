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

package expr

import (
	"fmt"

	"github.com/columnar-io/stripescan/column"
)

// Evaluate applies one predicate to every row of the chunk and returns the
// tri-state result column.
func Evaluate(p Predicate, chunk *column.Chunk) ([]Tristate, error) {
	col, ok := chunk.Column(p.Slot())
	if !ok {
		return nil, fmt.Errorf("expr: slot %d not present in chunk", p.Slot())
	}
	out := make([]Tristate, col.Len())
	for i := range out {
		t, err := p.Match(col.Value(i))
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// EvaluateIntoBitmap ANDs the predicates into keep, treating null as false,
// and returns the survivor count. It exits early the moment no row survives.
// keep must have the chunk's row count.
func EvaluateIntoBitmap(preds []Predicate, chunk *column.Chunk, keep *column.Bitmap) (int, error) {
	if keep.Len() != chunk.NumRows() {
		return 0, fmt.Errorf("expr: bitmap length %d does not match chunk rows %d", keep.Len(), chunk.NumRows())
	}
	for _, p := range preds {
		col, ok := chunk.Column(p.Slot())
		if !ok {
			return 0, fmt.Errorf("expr: slot %d not present in chunk", p.Slot())
		}
		var dropped []int
		var matchErr error
		keep.Range(func(i int) {
			if matchErr != nil {
				return
			}
			t, err := p.Match(col.Value(i))
			if err != nil {
				matchErr = err
				return
			}
			if t != True {
				dropped = append(dropped, i)
			}
		})
		if matchErr != nil {
			return 0, matchErr
		}
		for _, i := range dropped {
			keep.Clear(i)
		}
		if keep.Count() == 0 {
			return 0, nil
		}
	}
	return keep.Count(), nil
}
