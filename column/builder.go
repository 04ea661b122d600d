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

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// MaxDecimalPrecision is the widest precision an int64-backed decimal can
// carry without overflow.
const MaxDecimalPrecision = 18

// Builder is an append-only builder of fixed-width columns with deferred
// null tracking: the null vector is only attached to the result when at
// least one null was appended.
type Builder[T Scalar] struct {
	vals    []T
	nulls   []bool
	hasNull bool
}

func NewBuilder[T Scalar](capacity int) *Builder[T] {
	b := &Builder[T]{}
	b.Reserve(capacity)
	return b
}

func (b *Builder[T]) Append(v T) {
	b.vals = append(b.vals, v)
	b.nulls = append(b.nulls, false)
}

func (b *Builder[T]) AppendNullable(v T, isNull bool) {
	b.hasNull = b.hasNull || isNull
	b.vals = append(b.vals, v)
	b.nulls = append(b.nulls, isNull)
}

// AppendNull writes a default placeholder plus a null marker.
func (b *Builder[T]) AppendNull() {
	var zero T
	b.hasNull = true
	b.vals = append(b.vals, zero)
	b.nulls = append(b.nulls, true)
}

func (b *Builder[T]) Reserve(n int) {
	if cap(b.vals)-len(b.vals) < n {
		vals := make([]T, len(b.vals), len(b.vals)+n)
		copy(vals, b.vals)
		b.vals = vals
		nulls := make([]bool, len(b.nulls), len(b.nulls)+n)
		copy(nulls, b.nulls)
		b.nulls = nulls
	}
}

func (b *Builder[T]) Len() int { return len(b.vals) }

// Build finalizes the column. With asConst the single appended value is
// repeated as a constant column (or a constant null if a null was appended).
func (b *Builder[T]) Build(asConst bool) Column {
	if asConst && b.hasNull {
		return NewConstNull(len(b.vals))
	}
	if asConst {
		return NewConst(parquet.ValueOf(b.vals[0]), len(b.vals))
	}
	if b.hasNull {
		return NewNullable(NewTyped(b.vals), b.nulls)
	}
	return NewTyped(b.vals)
}

// DecimalBuilder builds int64-backed fixed-precision columns. Precision and
// scale are validated at construction and attached to the resulting column.
type DecimalBuilder struct {
	Builder[int64]
	precision int
	scale     int
}

func NewDecimalBuilder(capacity, precision, scale int) (*DecimalBuilder, error) {
	if scale < 0 || scale > precision || precision > MaxDecimalPrecision {
		return nil, fmt.Errorf("decimal: invalid precision/scale %d/%d", precision, scale)
	}
	b := &DecimalBuilder{precision: precision, scale: scale}
	b.Reserve(capacity)
	return b, nil
}

func (b *DecimalBuilder) Precision() int { return b.precision }

func (b *DecimalBuilder) Scale() int { return b.scale }
