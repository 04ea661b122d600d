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

func byteDict(vals ...string) *stripefile.Dictionary {
	pv := make([]parquet.Value, len(vals))
	for i, v := range vals {
		pv[i] = parquet.ByteArrayValue([]byte(v))
	}
	return stripefile.NewDictionary(pv)
}

var regionCol = stripefile.ReadColumn{Name: "region", Slot: 2, Kind: column.KindString}

func regionPreds(preds ...expr.Predicate) map[column.SlotID][]expr.Predicate {
	return map[column.SlotID][]expr.Predicate{2: preds}
}

func TestDictFilterBuildsSurvivalVector(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.Cmp(2, expr.Eq, parquet.ByteArrayValue([]byte("west")))),
		4096,
	)

	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west", "north")})
	require.False(t, skip)

	df := e.Filters()[2]
	require.NotNil(t, df)
	require.Len(t, df.Keep, 4, "dictionary codes plus the trailing null slot")
	require.Equal(t, []bool{false, true, false, false}, df.Keep)
}

func TestDictFilterNoMatchSkipsStripe(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.Cmp(2, expr.Eq, parquet.ByteArrayValue([]byte("south")))),
		4096,
	)

	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west")})
	require.True(t, skip, "no dictionary value matches and nulls cannot match either")
	require.Nil(t, e.Filters())
}

func TestDictFilterNullSlotSurvivesIsNull(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.IsNull(2)),
		4096,
	)

	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west")})
	require.False(t, skip, "null rows can still match")

	df := e.Filters()[2]
	require.NotNil(t, df)
	require.Equal(t, []bool{false, false, true}, df.Keep)
}

func TestDictFilterAllSurviveMeansNoFilter(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.IsNotNull(2), expr.Cmp(2, expr.Ge, parquet.ByteArrayValue([]byte("")))),
		4096,
	)

	// Every value survives IsNotNull+Ge"" except the null slot; a filter is
	// still produced because the null slot dies.
	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west")})
	require.False(t, skip)
	require.Equal(t, []bool{true, true, false}, e.Filters()[2].Keep)
}

func TestDictFilterCharPaddingStripped(t *testing.T) {
	charCol := stripefile.ReadColumn{Name: "code", Slot: 3, Kind: column.KindChar}
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{charCol},
		map[column.SlotID][]expr.Predicate{3: {expr.Cmp(3, expr.Eq, parquet.ByteArrayValue([]byte("ab")))}},
		4096,
	)

	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"code": byteDict("ab   ", "cd   ")})
	require.False(t, skip)
	require.Equal(t, []bool{true, false, false}, e.Filters()[3].Keep)
}

func TestDictFilterOversizedDictionaryFailsOpen(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.Cmp(2, expr.Eq, parquet.ByteArrayValue([]byte("west")))),
		2, // dictionary plus null slot would exceed a batch
	)

	skip := e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west")})
	require.False(t, skip)
	require.Empty(t, e.Filters(), "oversized dictionary must not produce a filter")
}

func TestDictFilterRebuiltPerStripe(t *testing.T) {
	e := newDictFilterEvaluator(
		[]stripefile.ReadColumn{regionCol},
		regionPreds(expr.Cmp(2, expr.Eq, parquet.ByteArrayValue([]byte("west")))),
		4096,
	)

	require.False(t, e.FilterDictionary(map[string]*stripefile.Dictionary{"region": byteDict("east", "west")}))
	require.NotNil(t, e.Filters()[2])

	// The next stripe is not dictionary encoded: the stale filter must go.
	require.False(t, e.FilterDictionary(map[string]*stripefile.Dictionary{}))
	require.Empty(t, e.Filters())
}
