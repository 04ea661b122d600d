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

package column

import "github.com/RoaringBitmap/roaring/v2"

// Bitmap is a survivor set aligned 1:1 with the rows of a batch. Its length
// is fixed at construction and must equal the batch's row count at the moment
// it is applied. Intersecting two bitmaps of the same batch is logical AND.
type Bitmap struct {
	n int
	b *roaring.Bitmap
}

// NewBitmap returns a bitmap of length n with every row surviving.
func NewBitmap(n int) *Bitmap {
	b := roaring.New()
	if n > 0 {
		b.AddRange(0, uint64(n))
	}
	return &Bitmap{n: n, b: b}
}

// NewEmptyBitmap returns a bitmap of length n with no row surviving.
func NewEmptyBitmap(n int) *Bitmap {
	return &Bitmap{n: n, b: roaring.New()}
}

func (f *Bitmap) Len() int { return f.n }

func (f *Bitmap) Count() int { return int(f.b.GetCardinality()) }

func (f *Bitmap) Test(i int) bool { return f.b.Contains(uint32(i)) }

func (f *Bitmap) Set(i int) { f.b.Add(uint32(i)) }

func (f *Bitmap) Clear(i int) { f.b.Remove(uint32(i)) }

// And intersects f with other in place. Both bitmaps must have the same
// length.
func (f *Bitmap) And(other *Bitmap) {
	f.b.And(other.b)
}

// Range calls fn for every surviving row in ascending order.
func (f *Bitmap) Range(fn func(i int)) {
	it := f.b.Iterator()
	for it.HasNext() {
		fn(int(it.Next()))
	}
}
