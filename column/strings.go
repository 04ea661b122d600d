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

import "github.com/parquet-go/parquet-go"

// StringBuilder builds variable-length columns. It supports two styles:
//
// Sequential: Append/AppendNull grow the column one row at a time.
//
// Preallocated: Resize fixes the row count up front, then rows are written
// by index with Append(b, i), SetNull(i) or the partial protocol. The byte
// buffer still grows on demand; only offsets and nulls are sized ahead.
//
// Invariant either way: offsets are non-decreasing, offsets[0] == 0 and the
// null vector length equals the row count.
type StringBuilder struct {
	bytes   []byte
	offsets []uint32
	nulls   []bool
	hasNull bool
}

func NewStringBuilder(capacity int) *StringBuilder {
	return &StringBuilder{
		bytes:   make([]byte, 0, capacity*8),
		offsets: append(make([]uint32, 0, capacity+1), 0),
		nulls:   make([]bool, 0, capacity),
	}
}

// Resize prepares the builder for rows indexed writes, reserving
// estimatedBytes for the byte buffer. Offsets need no initialization beyond
// the leading zero because every slot is overwritten exactly once; nulls are
// zeroed so only null rows have to be marked.
func (b *StringBuilder) Resize(rows int, estimatedBytes int) {
	if cap(b.bytes) < estimatedBytes {
		b.bytes = make([]byte, 0, estimatedBytes)
	} else {
		b.bytes = b.bytes[:0]
	}
	b.offsets = make([]uint32, rows+1)
	b.nulls = make([]bool, rows)
	b.hasNull = false
}

// Append writes the i-th row and finalizes its offset.
func (b *StringBuilder) Append(v []byte, i int) {
	b.bytes = append(b.bytes, v...)
	b.offsets[i+1] = uint32(len(b.bytes))
}

// SetNull marks the i-th row null. The row holds zero bytes.
func (b *StringBuilder) SetNull(i int) {
	b.hasNull = true
	b.nulls[i] = true
	b.offsets[i+1] = uint32(len(b.bytes))
}

// AppendPartial writes bytes for a row under construction without finalizing
// its offset. Several columns concatenated into one output value call this
// once per part and finish with AppendComplete.
func (b *StringBuilder) AppendPartial(v []byte) {
	b.bytes = append(b.bytes, v...)
}

// AppendComplete finalizes the offset of row i after one or more
// AppendPartial calls.
func (b *StringBuilder) AppendComplete(i int) {
	b.offsets[i+1] = uint32(len(b.bytes))
}

// Rewind removes the last n written bytes, undoing a speculative partial
// write.
func (b *StringBuilder) Rewind(n int) {
	b.bytes = b.bytes[:len(b.bytes)-n]
}

// AppendValue grows the column by one row in sequential style.
func (b *StringBuilder) AppendValue(v []byte) {
	b.bytes = append(b.bytes, v...)
	b.offsets = append(b.offsets, uint32(len(b.bytes)))
	b.nulls = append(b.nulls, false)
}

// AppendNull grows the column by one empty null row in sequential style.
func (b *StringBuilder) AppendNull() {
	b.hasNull = true
	b.offsets = append(b.offsets, uint32(len(b.bytes)))
	b.nulls = append(b.nulls, true)
}

func (b *StringBuilder) Len() int { return len(b.offsets) - 1 }

// TrimCharPadding strips the trailing space or NUL padding CHAR(n) values
// carry on disk, so comparisons see the logical value.
func TrimCharPadding(v []byte) []byte {
	for len(v) > 0 && (v[len(v)-1] == ' ' || v[len(v)-1] == 0) {
		v = v[:len(v)-1]
	}
	return v
}

func (b *StringBuilder) Build(asConst bool) Column {
	n := b.Len()
	if asConst && b.hasNull {
		return NewConstNull(n)
	}
	data := NewStrings(b.bytes, b.offsets)
	if asConst {
		return NewConst(parquet.ByteArrayValue(data.Bytes(0)), n)
	}
	if b.hasNull {
		return NewNullable(data, b.nulls)
	}
	return data
}
