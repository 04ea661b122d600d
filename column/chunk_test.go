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
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

func parquetStr(s string) parquet.Value { return parquet.ByteArrayValue([]byte(s)) }

func TestBitmap(t *testing.T) {
	b := NewBitmap(5)
	require.Equal(t, 5, b.Len())
	require.Equal(t, 5, b.Count())
	b.Clear(1)
	b.Clear(3)
	require.Equal(t, 3, b.Count())
	require.True(t, b.Test(0))
	require.False(t, b.Test(1))

	var seen []int
	b.Range(func(i int) { seen = append(seen, i) })
	require.Equal(t, []int{0, 2, 4}, seen)

	other := NewEmptyBitmap(5)
	other.Set(2)
	other.Set(3)
	b.And(other)
	require.Equal(t, 1, b.Count())
	require.True(t, b.Test(2))
}

func TestChunkAppendValidation(t *testing.T) {
	c := NewChunk()
	require.NoError(t, c.AppendColumn(1, NewTyped([]int64{1, 2, 3})))
	require.Error(t, c.AppendColumn(1, NewTyped([]int64{1, 2, 3})), "duplicate slot")
	require.Error(t, c.AppendColumn(2, NewTyped([]int64{1, 2})), "row count mismatch")
	require.Equal(t, 3, c.NumRows())
	require.Equal(t, 1, c.NumColumns())
}

func TestChunkFilter(t *testing.T) {
	c := NewChunk()
	require.NoError(t, c.AppendColumn(1, NewTyped([]int64{10, 20, 30})))
	require.NoError(t, c.AppendColumn(2, NewConst(parquetStr("x"), 3)))

	keep := NewBitmap(3)
	keep.Clear(1)
	c.Filter(keep)

	require.Equal(t, 2, c.NumRows())
	ids, _ := c.Column(1)
	require.Equal(t, int64(10), ids.Value(0).Int64())
	require.Equal(t, int64(30), ids.Value(1).Int64())
	konst, _ := c.Column(2)
	require.Equal(t, 2, konst.Len())
}

func TestChunkMergeAndReorder(t *testing.T) {
	eager := NewChunk()
	require.NoError(t, eager.AppendColumn(2, NewTyped([]int64{1, 2})))
	lazy := NewChunk()
	require.NoError(t, lazy.AppendColumn(1, NewTyped([]int64{10, 20})))

	require.NoError(t, eager.Merge(lazy))
	require.Equal(t, []SlotID{2, 1}, eager.Slots())

	require.NoError(t, eager.Reorder([]SlotID{1, 2}))
	require.Equal(t, []SlotID{1, 2}, eager.Slots())

	require.Error(t, eager.Reorder([]SlotID{1}), "template too short")
	require.Error(t, eager.Reorder([]SlotID{1, 3}), "unknown template slot")
}
