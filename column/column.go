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

// Package column holds the materialized column variants a scan produces and
// the builders used to assemble them. Columns are immutable once built; the
// only mutation is physical compaction through a filter bitmap, which returns
// a new column. Dictionary codes never leave this package: a dictionary
// encoded column is always resolved to one of the variants below before it
// reaches a chunk.
package column

import (
	"github.com/parquet-go/parquet-go"

	"github.com/columnar-io/stripescan/util"
)

// SlotID is the stable logical identifier of an output column. Chunks are
// keyed by it, never by position.
type SlotID int32

// Kind is the logical type of a requested column. It is deliberately small:
// the decode layer owns the physical encodings.
type Kind int

const (
	KindBool Kind = iota
	KindInt32
	KindInt64
	KindFloat64
	KindString
	// KindChar is a fixed-width character type whose values carry trailing
	// pad spaces on disk.
	KindChar
	// KindTimestamp is an instant in milliseconds since the Unix epoch,
	// stored as int64.
	KindTimestamp
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindChar:
		return "char"
	case KindTimestamp:
		return "timestamp"
	case KindDecimal:
		return "decimal"
	}
	return "unknown"
}

// Column is a materialized, row-aligned vector of values.
type Column interface {
	Len() int
	// Value returns the i-th value as a dynamic scalar. Null entries return
	// a null parquet.Value.
	Value(i int) parquet.Value
	// Filter returns a copy of the column holding only the rows set in keep.
	// len(keep) must equal Len().
	Filter(keep *Bitmap) Column
}

// Scalar is the set of fixed-width value types a typed column can hold.
type Scalar interface {
	~bool | ~int32 | ~int64 | ~float64
}

// Typed is a plain column of fixed-width values with no nulls.
type Typed[T Scalar] struct {
	vals []T
}

func NewTyped[T Scalar](vals []T) *Typed[T] {
	return &Typed[T]{vals: vals}
}

func (c *Typed[T]) Len() int { return len(c.vals) }

func (c *Typed[T]) Value(i int) parquet.Value {
	return parquet.ValueOf(c.vals[i])
}

func (c *Typed[T]) Values() []T { return c.vals }

func (c *Typed[T]) Filter(keep *Bitmap) Column {
	out := make([]T, 0, keep.Count())
	keep.Range(func(i int) {
		out = append(out, c.vals[i])
	})
	return &Typed[T]{vals: out}
}

// Strings is a plain variable-length column stored as a byte blob plus
// offsets, offsets[0] == 0 and len(offsets) == rows+1.
type Strings struct {
	bytes   []byte
	offsets []uint32
}

func NewStrings(bytes []byte, offsets []uint32) *Strings {
	return &Strings{bytes: bytes, offsets: offsets}
}

func (c *Strings) Len() int { return len(c.offsets) - 1 }

func (c *Strings) Value(i int) parquet.Value {
	return parquet.ByteArrayValue(c.Bytes(i))
}

func (c *Strings) Bytes(i int) []byte {
	return c.bytes[c.offsets[i]:c.offsets[i+1]]
}

func (c *Strings) String(i int) string {
	return util.YoloString(c.Bytes(i))
}

func (c *Strings) Filter(keep *Bitmap) Column {
	n := keep.Count()
	bytes := make([]byte, 0, len(c.bytes))
	offsets := make([]uint32, 1, n+1)
	keep.Range(func(i int) {
		bytes = append(bytes, c.Bytes(i)...)
		offsets = append(offsets, uint32(len(bytes)))
	})
	return &Strings{bytes: bytes, offsets: offsets}
}

// Nullable wraps a data column with a null bitmap of the same length.
type Nullable struct {
	data  Column
	nulls []bool
}

func NewNullable(data Column, nulls []bool) *Nullable {
	return &Nullable{data: data, nulls: nulls}
}

func (c *Nullable) Len() int { return c.data.Len() }

func (c *Nullable) Value(i int) parquet.Value {
	if c.nulls[i] {
		return parquet.NullValue()
	}
	return c.data.Value(i)
}

func (c *Nullable) IsNull(i int) bool { return c.nulls[i] }

func (c *Nullable) Data() Column { return c.data }

func (c *Nullable) Filter(keep *Bitmap) Column {
	nulls := make([]bool, 0, keep.Count())
	keep.Range(func(i int) {
		nulls = append(nulls, c.nulls[i])
	})
	return &Nullable{data: c.data.Filter(keep), nulls: nulls}
}

// Const repeats a single value n times. An all-null column is a Const
// holding a null value.
type Const struct {
	val parquet.Value
	n   int
}

func NewConst(val parquet.Value, n int) *Const {
	return &Const{val: val, n: n}
}

func NewConstNull(n int) *Const {
	return &Const{val: parquet.NullValue(), n: n}
}

func (c *Const) Len() int { return c.n }

func (c *Const) Value(int) parquet.Value { return c.val }

func (c *Const) ConstValue() parquet.Value { return c.val }

func (c *Const) Filter(keep *Bitmap) Column {
	return &Const{val: c.val, n: keep.Count()}
}
