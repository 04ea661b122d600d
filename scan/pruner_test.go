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
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/columnar-io/stripescan/column"
	"github.com/columnar-io/stripescan/expr"
	"github.com/columnar-io/stripescan/stripefile"
)

func int64Stats(min, max int64) map[string]ColumnStatistics {
	return map[string]ColumnStatistics{
		"id": {Min: parquet.Int64Value(min), Max: parquet.Int64Value(max), HasMinMax: true},
	}
}

func idBinding() map[column.SlotID]slotBinding {
	return map[column.SlotID]slotBinding{
		1: {name: "id", kind: column.KindInt64, inFile: true},
	}
}

func TestPrunerScanRangeOwnership(t *testing.T) {
	ranges := []ScanRange{
		{Offset: 0, Length: 100},
		{Offset: 300, Length: 100},
	}
	p := newPruner(nil, ranges, nil, nil, "")

	require.False(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 0}))
	require.False(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 99}))
	require.True(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 100}))
	require.True(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 250}))
	require.False(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 300}))
	require.False(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 399}))
	require.True(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 400}))

	// A stripe starting mid-range still belongs to the range.
	require.False(t, p.FilterStripe(0, stripefile.StripeInfo{Offset: 350}))

	// No ranges means the scanner owns the whole file.
	all := newPruner(nil, nil, nil, nil, "")
	require.False(t, all.FilterStripe(0, stripefile.StripeInfo{Offset: 12345}))
}

func TestPrunerEqualityUsesBounds(t *testing.T) {
	preds := []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.Int64Value(5))}
	p := newPruner(nil, nil, preds, idBinding(), "")

	// 5 is inside [1, 10]: evaluating raw equality on the bound rows would
	// wrongly skip; the decomposed bound checks must keep it.
	require.False(t, p.FilterRowGroup(0, 0, int64Stats(1, 10)))
	require.True(t, p.FilterRowGroup(0, 0, int64Stats(6, 10)))
	require.True(t, p.FilterRowGroup(0, 0, int64Stats(1, 4)))
	require.False(t, p.FilterRowGroup(0, 0, int64Stats(5, 5)))
}

func TestPrunerRangePredicates(t *testing.T) {
	p := newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Ge, parquet.Int64Value(10))}, idBinding(), "")
	require.True(t, p.FilterRowGroup(0, 0, int64Stats(0, 9)))
	require.False(t, p.FilterRowGroup(0, 0, int64Stats(0, 10)))

	// Ne cannot prune on bounds.
	p = newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Ne, parquet.Int64Value(5))}, idBinding(), "")
	require.False(t, p.FilterRowGroup(0, 0, int64Stats(5, 5)))
}

func TestPrunerMissingStatsFailOpen(t *testing.T) {
	p := newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Ge, parquet.Int64Value(10))}, idBinding(), "")

	require.False(t, p.FilterRowGroup(0, 0, map[string]ColumnStatistics{}), "no stats entry keeps the window")
	require.False(t, p.FilterRowGroup(0, 0, map[string]ColumnStatistics{
		"id": {NullCount: 4},
	}), "all-null window evaluates to null, which keeps")
}

func TestPrunerAbsentColumnUsesPartitionConstant(t *testing.T) {
	bindings := map[column.SlotID]slotBinding{
		1: {name: "dt", kind: column.KindInt64, inFile: false, partition: parquet.Int64Value(7), hasPartition: true},
	}
	keepPred := []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.Int64Value(7))}
	p := newPruner(nil, nil, keepPred, bindings, "")
	require.False(t, p.FilterRowGroup(0, 0, nil))

	skipPred := []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.Int64Value(8))}
	p = newPruner(nil, nil, skipPred, bindings, "")
	require.True(t, p.FilterRowGroup(0, 0, nil))
}

func TestPrunerAbsentColumnWithoutPartitionIsNull(t *testing.T) {
	bindings := map[column.SlotID]slotBinding{
		1: {name: "dt", kind: column.KindInt64, inFile: false},
	}
	p := newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.Int64Value(8))}, bindings, "")
	require.False(t, p.FilterRowGroup(0, 0, nil), "null bounds are inconclusive, not false")
}

func TestPrunerCharStatisticsCompareTrimmed(t *testing.T) {
	bindings := map[column.SlotID]slotBinding{
		1: {name: "code", kind: column.KindChar, inFile: true},
	}
	padded := map[string]ColumnStatistics{
		"code": {
			Min:       parquet.ByteArrayValue([]byte("ab   ")),
			Max:       parquet.ByteArrayValue([]byte("cd   ")),
			HasMinMax: true,
		},
	}

	// The operand is trimmed while the bounds carry pad spaces; comparing
	// raw would put "ab" below "ab   " and wrongly skip the window.
	p := newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.ByteArrayValue([]byte("ab")))}, bindings, "")
	require.False(t, p.FilterRowGroup(0, 0, padded))

	p = newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Le, parquet.ByteArrayValue([]byte("cd")))}, bindings, "")
	require.False(t, p.FilterRowGroup(0, 0, padded))

	// A value outside the trimmed bounds still prunes.
	p = newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Eq, parquet.ByteArrayValue([]byte("zz")))}, bindings, "")
	require.True(t, p.FilterRowGroup(0, 0, padded))
}

func TestPrunerTimestampSkew(t *testing.T) {
	bindings := map[column.SlotID]slotBinding{
		1: {name: "id", kind: column.KindTimestamp, inFile: true},
	}
	// Reader one hour east of the writer: statistics shift forward by 1h.
	p := newPruner(nil, nil, []expr.Predicate{expr.Cmp(1, expr.Ge, parquet.Int64Value(3_600_000))}, bindings, "")
	p.readerOffset = 3600
	p.writerOffset = 0

	// Raw bounds [0, 1000] become [3_600_000, 3_601_000] in reader time.
	require.False(t, p.FilterRowGroup(0, 0, int64Stats(0, 1000)))

	// Without the skew the same window would be pruned.
	p.readerOffset = 0
	require.True(t, p.FilterRowGroup(0, 0, int64Stats(0, 1000)))
}

func TestPrunerUnknownWriterTimezoneIsNoop(t *testing.T) {
	p := newPruner(nil, nil, nil, nil, "UTC")
	before := p.writerOffset
	p.SetWriterTimezone("Not/AZone")
	require.Equal(t, before, p.writerOffset, "unknown zones fall back to the reader offset")

	p.SetWriterTimezone("")
	require.Equal(t, before, p.writerOffset)
}
