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
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/columnar-io/stripescan/column"
	"github.com/columnar-io/stripescan/expr"
	"github.com/columnar-io/stripescan/stripefile"
)

// ColumnStatistics is the per-window statistics entry the decode layer
// aggregates.
type ColumnStatistics = stripefile.ColumnStatistics

// ScanRange is a byte span of the file this scanner instance owns. A stripe
// belongs to the instance whose range contains the stripe's start offset, so
// instances sharing a file never read the same stripe twice.
type ScanRange struct {
	Offset uint64
	Length uint64
}

// slotBinding is everything the pruner knows about one predicate column.
type slotBinding struct {
	name         string
	kind         column.Kind
	inFile       bool
	partition    parquet.Value
	hasPartition bool
}

// pruner answers stripe and row window skip questions from scan ranges, file
// statistics and bloom filters. Every inconclusive case keeps the data: the
// row-level filter downstream is the authority, this layer only avoids work.
type pruner struct {
	f      *stripefile.StripeFile
	ranges []ScanRange // sorted by end offset

	// minmax predicates, equality decomposed into Ge+Le so that evaluating
	// them on the min and max rows is sound.
	preds []expr.Predicate
	// probes are the original equality predicates, usable against bloom
	// filters.
	probes []expr.Comparison

	slots map[column.SlotID]slotBinding

	readerOffset int64 // seconds east of UTC
	writerOffset int64
}

func newPruner(f *stripefile.StripeFile, ranges []ScanRange, preds []expr.Predicate, slots map[column.SlotID]slotBinding, readerTZ string) *pruner {
	p := &pruner{
		f:      f,
		ranges: append([]ScanRange{}, ranges...),
		slots:  slots,
	}
	sort.Slice(p.ranges, func(i, j int) bool {
		return p.ranges[i].Offset+p.ranges[i].Length < p.ranges[j].Offset+p.ranges[j].Length
	})
	for _, pr := range preds {
		cp, ok := pr.(expr.Comparison)
		if !ok {
			continue
		}
		switch cp.Op() {
		case expr.Eq:
			p.preds = append(p.preds,
				expr.Cmp(cp.Slot(), expr.Ge, cp.Operand()),
				expr.Cmp(cp.Slot(), expr.Le, cp.Operand()))
			p.probes = append(p.probes, cp)
		case expr.Lt, expr.Le, expr.Gt, expr.Ge:
			p.preds = append(p.preds, pr)
		}
		// Ne cannot prune on min/max bounds.
	}
	p.readerOffset = tzOffsetSeconds(readerTZ, 0)
	p.writerOffset = p.readerOffset
	return p
}

// SetWriterTimezone records the timezone the file's timestamp statistics were
// written in. Unknown names fall back to the reader's offset, which makes the
// skew adjustment a no-op.
func (p *pruner) SetWriterTimezone(tz string) {
	p.writerOffset = tzOffsetSeconds(tz, p.readerOffset)
}

func tzOffsetSeconds(name string, fallback int64) int64 {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	_, off := time.Now().In(loc).Zone()
	return int64(off)
}

// FilterStripe skips stripes outside the scan ranges, then consults bloom
// filters for equality probes.
func (p *pruner) FilterStripe(stripeIdx int, info stripefile.StripeInfo) bool {
	if !p.ownsOffset(info.Offset) {
		return true
	}
	if p.f == nil {
		return false
	}
	for _, probe := range p.probes {
		sb, ok := p.slots[probe.Slot()]
		if !ok || !sb.inFile {
			continue
		}
		// Timestamp operands are in reader time, char operands are trimmed;
		// the filter hashes raw disk values for both.
		if sb.kind == column.KindTimestamp || sb.kind == column.KindChar {
			continue
		}
		pi, ok := p.f.LookupColumn(sb.name)
		if !ok {
			continue
		}
		might, err := p.f.BloomCheck(stripeIdx, pi, probe.Operand())
		if err == nil && !might {
			return true
		}
	}
	return false
}

// ownsOffset finds the first range ending past the offset and checks the
// offset is inside it.
func (p *pruner) ownsOffset(off uint64) bool {
	if len(p.ranges) == 0 {
		return true
	}
	i := sort.Search(len(p.ranges), func(i int) bool {
		return p.ranges[i].Offset+p.ranges[i].Length > off
	})
	return i < len(p.ranges) && p.ranges[i].Offset <= off
}

// FilterRowGroup builds synthetic min and max rows from the window statistics
// and skips the window only when some predicate is provably false on both.
func (p *pruner) FilterRowGroup(stripeIdx, groupIdx int, stats map[string]ColumnStatistics) bool {
	minRow := make(map[column.SlotID]parquet.Value, len(p.slots))
	maxRow := make(map[column.SlotID]parquet.Value, len(p.slots))
	for slot, sb := range p.slots {
		switch {
		case !sb.inFile && sb.hasPartition:
			minRow[slot], maxRow[slot] = sb.partition, sb.partition
		case !sb.inFile:
			minRow[slot], maxRow[slot] = parquet.NullValue(), parquet.NullValue()
		default:
			cs, ok := stats[sb.name]
			if !ok {
				// Statistics missing for an in-file column: the
				// window is not prunable at all.
				return false
			}
			if !cs.HasMinMax {
				minRow[slot], maxRow[slot] = parquet.NullValue(), parquet.NullValue()
				continue
			}
			minv, maxv := cs.Min, cs.Max
			switch sb.kind {
			case column.KindTimestamp:
				minv = p.adjustTimestamp(minv)
				maxv = p.adjustTimestamp(maxv)
			case column.KindChar:
				// Statistics carry the padded disk bytes; predicates and
				// decoded rows compare trimmed.
				minv = parquet.ByteArrayValue(column.TrimCharPadding(minv.ByteArray()))
				maxv = parquet.ByteArrayValue(column.TrimCharPadding(maxv.ByteArray()))
			}
			minRow[slot], maxRow[slot] = minv, maxv
		}
	}
	for _, pred := range p.preds {
		minv, ok := minRow[pred.Slot()]
		if !ok {
			continue
		}
		tmin, err := pred.Match(minv)
		if err != nil {
			continue
		}
		tmax, err := pred.Match(maxRow[pred.Slot()])
		if err != nil {
			continue
		}
		if tmin == expr.False && tmax == expr.False {
			return true
		}
	}
	return false
}

// adjustTimestamp moves a statistics timestamp from writer local time to
// reader local time. Values are milliseconds.
func (p *pruner) adjustTimestamp(v parquet.Value) parquet.Value {
	skew := (p.readerOffset - p.writerOffset) * 1000
	if skew == 0 {
		return v
	}
	return parquet.Int64Value(v.Int64() + skew)
}
