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
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/columnar-io/stripescan/column"
)

func TestCompareWidening(t *testing.T) {
	cases := []struct {
		a, b parquet.Value
		want int
	}{
		{parquet.Int32Value(1), parquet.Int64Value(2), -1},
		{parquet.Int64Value(5), parquet.Int32Value(5), 0},
		{parquet.Int64Value(3), parquet.DoubleValue(2.5), 1},
		{parquet.FloatValue(1.5), parquet.DoubleValue(1.5), 0},
		{parquet.ByteArrayValue([]byte("a")), parquet.ByteArrayValue([]byte("b")), -1},
		{parquet.BooleanValue(true), parquet.BooleanValue(false), 1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "%v vs %v", c.a, c.b)
	}

	_, err := Compare(parquet.Int64Value(1), parquet.ByteArrayValue([]byte("a")))
	require.Error(t, err, "incomparable kinds must error")
}

func TestCmpTristate(t *testing.T) {
	p := Cmp(1, Eq, parquet.Int64Value(5))

	tr, err := p.Match(parquet.Int64Value(5))
	require.NoError(t, err)
	require.Equal(t, True, tr)

	tr, err = p.Match(parquet.Int64Value(6))
	require.NoError(t, err)
	require.Equal(t, False, tr)

	tr, err = p.Match(parquet.NullValue())
	require.NoError(t, err)
	require.Equal(t, Null, tr, "null operand side yields null, not false")
}

func TestNullPredicates(t *testing.T) {
	isNull := IsNull(1)
	isNotNull := IsNotNull(1)

	tr, err := isNull.Match(parquet.NullValue())
	require.NoError(t, err)
	require.Equal(t, True, tr)

	tr, err = isNull.Match(parquet.Int64Value(0))
	require.NoError(t, err)
	require.Equal(t, False, tr)

	tr, err = isNotNull.Match(parquet.Int64Value(0))
	require.NoError(t, err)
	require.Equal(t, True, tr)
}

func TestEvaluate(t *testing.T) {
	chunk := column.NewChunk()
	b := column.NewBuilder[int64](3)
	b.Append(1)
	b.AppendNull()
	b.Append(3)
	require.NoError(t, chunk.AppendColumn(1, b.Build(false)))

	out, err := Evaluate(Cmp(1, Ge, parquet.Int64Value(2)), chunk)
	require.NoError(t, err)
	require.Equal(t, []Tristate{False, Null, True}, out)

	_, err = Evaluate(Cmp(9, Eq, parquet.Int64Value(1)), chunk)
	require.Error(t, err, "unknown slot")
}

func TestEvaluateIntoBitmapNullIsFalse(t *testing.T) {
	chunk := column.NewChunk()
	b := column.NewBuilder[int64](4)
	b.Append(1)
	b.AppendNull()
	b.Append(5)
	b.Append(10)
	require.NoError(t, chunk.AppendColumn(1, b.Build(false)))

	keep := column.NewBitmap(4)
	n, err := EvaluateIntoBitmap([]Predicate{Cmp(1, Ge, parquet.Int64Value(5))}, chunk, keep)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, keep.Test(0))
	require.False(t, keep.Test(1), "null row must be dropped")
	require.True(t, keep.Test(2))
	require.True(t, keep.Test(3))
}

func TestEvaluateIntoBitmapConjunction(t *testing.T) {
	chunk := column.NewChunk()
	require.NoError(t, chunk.AppendColumn(1, column.NewTyped([]int64{1, 2, 3, 4})))
	require.NoError(t, chunk.AppendColumn(2, column.NewTyped([]int64{10, 20, 30, 40})))

	keep := column.NewBitmap(4)
	n, err := EvaluateIntoBitmap([]Predicate{
		Cmp(1, Gt, parquet.Int64Value(1)),
		Cmp(2, Lt, parquet.Int64Value(40)),
	}, chunk, keep)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, keep.Test(1))
	require.True(t, keep.Test(2))

	// Contradiction empties the bitmap.
	keep = column.NewBitmap(4)
	n, err = EvaluateIntoBitmap([]Predicate{
		Cmp(1, Gt, parquet.Int64Value(10)),
		Cmp(2, Lt, parquet.Int64Value(40)),
	}, chunk, keep)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestEvaluateIntoBitmapLengthMismatch(t *testing.T) {
	chunk := column.NewChunk()
	require.NoError(t, chunk.AppendColumn(1, column.NewTyped([]int64{1, 2})))
	keep := column.NewBitmap(3)
	_, err := EvaluateIntoBitmap([]Predicate{Cmp(1, Eq, parquet.Int64Value(1))}, chunk, keep)
	require.Error(t, err)
}
