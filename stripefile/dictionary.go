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

package stripefile

import "github.com/parquet-go/parquet-go"

// Dictionary is a stripe-local copy of a column's encoding dictionary. The
// values are cloned so the dictionary stays valid after the source page is
// released.
type Dictionary struct {
	vals []parquet.Value
}

// NewDictionary builds a dictionary from explicit values.
func NewDictionary(vals []parquet.Value) *Dictionary {
	return &Dictionary{vals: vals}
}

func newDictionary(d parquet.Dictionary) *Dictionary {
	vals := make([]parquet.Value, d.Len())
	for i := range vals {
		vals[i] = d.Index(int32(i)).Clone()
	}
	return &Dictionary{vals: vals}
}

func (d *Dictionary) Len() int { return len(d.vals) }

// Index returns the value for a dictionary code.
func (d *Dictionary) Index(i int32) parquet.Value { return d.vals[i] }
