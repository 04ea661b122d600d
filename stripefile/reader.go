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

import (
	"context"
	"io"

	"github.com/efficientgo/core/errcapture"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/columnar-io/stripescan/column"
	"github.com/columnar-io/stripescan/util"
)

// ReadColumn binds a file column to an output slot.
type ReadColumn struct {
	Name string
	Slot column.SlotID
	Kind column.Kind
}

// ColumnStatistics are min/max statistics aggregated over one row window.
// HasMinMax false with NullCount > 0 means every row in the window is null.
type ColumnStatistics struct {
	Min       parquet.Value
	Max       parquet.Value
	NullCount int64
	HasMinMax bool
}

// Position identifies the row window a batch was decoded from.
type Position struct {
	Stripe      int
	RowInStripe int64
	NumRows     int
}

// RowFilter is the pruning callback chain the reader consults while it
// advances. Every method answers "skip this?"; implementations must fail
// open, returning false whenever they cannot decide.
type RowFilter interface {
	// SetWriterTimezone announces the timezone the file's statistics were
	// written in, before any pruning question is asked.
	SetWriterTimezone(tz string)

	// FilterStripe is asked once per stripe, before any of its bytes are
	// read beyond the footer.
	FilterStripe(stripeIdx int, info StripeInfo) bool

	// FilterRowGroup is asked once per row window with the window's
	// aggregated statistics, keyed by column name. Columns with no entry
	// had unusable statistics.
	FilterRowGroup(stripeIdx, groupIdx int, stats map[string]ColumnStatistics) bool

	// FilterDictionary is asked once per stripe with the dictionaries of
	// the fully dictionary-encoded candidate columns. Returning true skips
	// the whole stripe.
	FilterDictionary(dicts map[string]*Dictionary) bool
}

// DictFilter is a per-dictionary-code survival vector. Keep has one extra
// trailing slot for the null code.
type DictFilter struct {
	Keep []bool
}

// ReaderOptions configure a Reader over one file.
type ReaderOptions struct {
	// RowsPerBatch is the row window size; stripes are processed in
	// windows of this many rows.
	RowsPerBatch int

	// Eager columns are decoded for every surviving window. Lazy columns
	// are decoded only on demand, after filtering.
	Eager []ReadColumn
	Lazy  []ReadColumn

	// StatColumns name the columns whose window statistics FilterRowGroup
	// wants to see.
	StatColumns []string

	// DictColumns are the columns whose stripe dictionaries feed
	// FilterDictionary and ApplyDictFilter.
	DictColumns []ReadColumn

	Filter RowFilter

	// MaxGapSize is the largest hole between page ranges that still gets
	// coalesced into a single read.
	MaxGapSize uint64
}

const defaultMaxGapSize = 64 << 10

// Reader walks a StripeFile window by window, consulting the RowFilter at
// stripe, dictionary and window granularity, and decodes surviving windows
// into chunks. Not safe for concurrent use.
type Reader struct {
	f    *StripeFile
	opts ReaderOptions
	part util.Partitioner

	physIdx map[string]int

	stripeIdx   int
	rowInStripe int64
	stripeRows  int64
	dicts       map[string]*Dictionary

	eagerChunk *column.Chunk
	readRows   int
	batchRows  int
	dictCodes  map[column.SlotID][]int32
	dictKeep   *column.Bitmap
}

// NewReader validates that every requested column exists in the file and
// positions the reader before the first stripe.
func NewReader(f *StripeFile, opts ReaderOptions) (*Reader, error) {
	if opts.RowsPerBatch <= 0 {
		return nil, errors.Errorf("rows per batch must be positive, got %d", opts.RowsPerBatch)
	}
	if opts.MaxGapSize == 0 {
		opts.MaxGapSize = defaultMaxGapSize
	}
	r := &Reader{
		f:         f,
		opts:      opts,
		part:      util.NewGapBasedPartitioner(opts.MaxGapSize),
		physIdx:   make(map[string]int),
		stripeIdx: -1,
	}
	for _, rc := range append(append([]ReadColumn{}, opts.Eager...), opts.Lazy...) {
		pi, ok := f.LookupColumn(rc.Name)
		if !ok {
			return nil, &ParseError{Path: f.Path(), Err: errors.Errorf("column %q not in file", rc.Name)}
		}
		r.physIdx[rc.Name] = pi
	}
	for _, name := range opts.StatColumns {
		pi, ok := f.LookupColumn(name)
		if !ok {
			return nil, &ParseError{Path: f.Path(), Err: errors.Errorf("stat column %q not in file", name)}
		}
		r.physIdx[name] = pi
	}
	if opts.Filter != nil {
		opts.Filter.SetWriterTimezone(f.WriterTimezone())
	}
	return r, nil
}

// ReadNext advances to the next surviving row window, decodes its eager
// columns and returns its position. io.EOF signals the end of the file.
func (r *Reader) ReadNext(ctx context.Context) (Position, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Position{}, err
		}
		if r.stripeIdx < 0 || r.rowInStripe >= r.stripeRows {
			if err := r.advanceStripe(); err != nil {
				return Position{}, err
			}
			continue
		}
		from := r.rowInStripe
		n := r.stripeRows - from
		if n > int64(r.opts.RowsPerBatch) {
			n = int64(r.opts.RowsPerBatch)
		}
		groupIdx := int(from / int64(r.opts.RowsPerBatch))
		r.rowInStripe += n

		if r.opts.Filter != nil && len(r.opts.StatColumns) > 0 {
			stats := r.windowStats(from, from+n)
			if r.opts.Filter.FilterRowGroup(r.stripeIdx, groupIdx, stats) {
				continue
			}
		}
		if err := r.decodeEager(ctx, from, n); err != nil {
			return Position{}, err
		}
		return Position{Stripe: r.stripeIdx, RowInStripe: from, NumRows: int(n)}, nil
	}
}

func (r *Reader) advanceStripe() error {
	for {
		r.stripeIdx++
		if r.stripeIdx >= len(r.f.Stripes()) {
			return io.EOF
		}
		info := r.f.Stripes()[r.stripeIdx]
		if r.opts.Filter != nil && r.opts.Filter.FilterStripe(r.stripeIdx, info) {
			continue
		}
		// Warm the cache with the stripe head; ScopeStripe expands the
		// span up to the cache capacity.
		if err := r.f.Stream().PrepareCache(ScopeStripe, int64(info.Offset), int64(info.Length)); err != nil {
			return err
		}
		if len(r.opts.DictColumns) > 0 {
			r.dicts = r.loadDictionaries()
			if r.opts.Filter != nil && r.opts.Filter.FilterDictionary(r.dicts) {
				continue
			}
		}
		r.rowInStripe = 0
		r.stripeRows = info.RowCount
		return nil
	}
}

// Dictionaries returns the dictionaries of the current stripe, keyed by
// column name. Only fully dictionary-encoded candidate columns appear.
func (r *Reader) Dictionaries() map[string]*Dictionary { return r.dicts }

// loadDictionaries reads the dictionary page of every candidate column that
// is dictionary encoded on all of its data pages. Columns that spilled to
// plain encoding are left out: their dictionary does not cover all values.
func (r *Reader) loadDictionaries() map[string]*Dictionary {
	dicts := make(map[string]*Dictionary, len(r.opts.DictColumns))
	rg := r.f.RowGroups()[r.stripeIdx]
	for _, rc := range r.opts.DictColumns {
		pi, ok := r.physIdx[rc.Name]
		if !ok {
			continue
		}
		if !r.fullyDictEncoded(pi) {
			continue
		}
		func() {
			pgs := rg.ColumnChunks()[pi].Pages()
			defer func() { _ = pgs.Close() }()
			pg, err := pgs.ReadPage()
			if err != nil {
				return
			}
			defer parquet.Release(pg)
			if d := pg.Dictionary(); d != nil {
				dicts[rc.Name] = newDictionary(d)
			}
		}()
	}
	return dicts
}

func (r *Reader) fullyDictEncoded(physIdx int) bool {
	meta := r.f.pf.Metadata().RowGroups[r.stripeIdx].Columns[physIdx].MetaData
	if len(meta.EncodingStats) == 0 {
		// No per-page stats; fall back to the chunk encoding list.
		for _, enc := range meta.Encoding {
			if enc == format.RLEDictionary || enc == format.PlainDictionary {
				return true
			}
		}
		return false
	}
	for _, st := range meta.EncodingStats {
		if st.PageType != format.DataPage && st.PageType != format.DataPageV2 {
			continue
		}
		if st.Encoding != format.RLEDictionary && st.Encoding != format.PlainDictionary {
			return false
		}
	}
	return true
}

// windowStats aggregates page statistics over the rows [from, to) of the
// current stripe. Page bounds widen to window bounds, so the result is always
// conservative; columns whose index is unreadable get no entry.
func (r *Reader) windowStats(from, to int64) map[string]ColumnStatistics {
	stats := make(map[string]ColumnStatistics, len(r.opts.StatColumns))
	rg := r.f.RowGroups()[r.stripeIdx]
	for _, name := range r.opts.StatColumns {
		pi := r.physIdx[name]
		cc := rg.ColumnChunks()[pi]
		cidx, err := cc.ColumnIndex()
		if err != nil || cidx == nil {
			continue
		}
		oidx, err := cc.OffsetIndex()
		if err != nil || oidx == nil {
			continue
		}
		typ := cc.Type()

		var (
			cs           ColumnStatistics
			inconclusive bool
		)
		for i := 0; i < cidx.NumPages(); i++ {
			pfrom := oidx.FirstRowIndex(i)
			pcount := rg.NumRows() - pfrom
			if i < oidx.NumPages()-1 {
				pcount = oidx.FirstRowIndex(i+1) - pfrom
			}
			if pfrom >= to {
				break
			}
			if pfrom+pcount <= from {
				continue
			}
			cs.NullCount += cidx.NullCount(i)
			if cidx.NullPage(i) {
				continue
			}
			minv, maxv := cidx.MinValue(i), cidx.MaxValue(i)
			if minv.IsNull() || maxv.IsNull() {
				inconclusive = true
				break
			}
			if !cs.HasMinMax {
				cs.Min, cs.Max, cs.HasMinMax = minv, maxv, true
				continue
			}
			if typ.Compare(minv, cs.Min) < 0 {
				cs.Min = minv
			}
			if typ.Compare(maxv, cs.Max) > 0 {
				cs.Max = maxv
			}
		}
		if inconclusive {
			continue
		}
		if cs.HasMinMax || cs.NullCount > 0 {
			stats[name] = cs
		}
	}
	return stats
}

func (r *Reader) decodeEager(ctx context.Context, from, n int64) error {
	dictWanted := make(map[column.SlotID]bool, len(r.opts.DictColumns))
	for _, rc := range r.opts.DictColumns {
		if _, ok := r.dicts[rc.Name]; ok {
			dictWanted[rc.Slot] = true
		}
	}

	cols := make([]column.Column, len(r.opts.Eager))
	codes := make([][]int32, len(r.opts.Eager))
	g, gctx := errgroup.WithContext(ctx)
	for i, rc := range r.opts.Eager {
		g.Go(func() error {
			var err error
			cols[i], codes[i], err = r.decodeColumn(gctx, rc, from, n, dictWanted[rc.Slot])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	chunk := column.NewChunk()
	r.dictCodes = make(map[column.SlotID][]int32)
	for i, rc := range r.opts.Eager {
		if err := chunk.AppendColumn(rc.Slot, cols[i]); err != nil {
			return err
		}
		if codes[i] != nil {
			r.dictCodes[rc.Slot] = codes[i]
		}
	}
	r.eagerChunk = chunk
	r.readRows = int(n)
	r.batchRows = int(n)
	r.dictKeep = nil
	return nil
}

// EagerChunk returns the eager columns of the current batch.
func (r *Reader) EagerChunk() *column.Chunk { return r.eagerChunk }

// BatchRows is the current batch's row count after dictionary filtering.
func (r *Reader) BatchRows() int { return r.batchRows }

// DictKeep is the survival bitmap the dictionary filter applied to the
// current batch, or nil when no rows were removed.
func (r *Reader) DictKeep() *column.Bitmap { return r.dictKeep }

// ApplyDictFilter drops batch rows whose dictionary code did not survive.
// Columns without collected codes are skipped; the filter never invents a
// drop it cannot prove. It reports whether the batch shrank.
func (r *Reader) ApplyDictFilter(filters map[column.SlotID]*DictFilter) bool {
	if len(filters) == 0 || r.readRows == 0 {
		return false
	}
	keep := column.NewBitmap(r.readRows)
	applied := false
	for slot, df := range filters {
		codes, ok := r.dictCodes[slot]
		if !ok {
			continue
		}
		applied = true
		nullSlot := len(df.Keep) - 1
		for i, code := range codes {
			idx := nullSlot
			if code >= 0 {
				idx = int(code)
			}
			if !df.Keep[idx] {
				keep.Clear(i)
			}
		}
	}
	if !applied || keep.Count() == r.readRows {
		return false
	}
	r.eagerChunk.Filter(keep)
	r.dictKeep = keep
	r.batchRows = keep.Count()
	return true
}

// LazyRead decodes the lazy columns of the window pos was decoded from and
// aligns them with the eager batch by replaying the dictionary filter.
func (r *Reader) LazyRead(ctx context.Context, pos Position) (*column.Chunk, error) {
	cols := make([]column.Column, len(r.opts.Lazy))
	g, gctx := errgroup.WithContext(ctx)
	for i, rc := range r.opts.Lazy {
		g.Go(func() error {
			var err error
			cols[i], _, err = r.decodeColumn(gctx, rc, pos.RowInStripe, int64(pos.NumRows), false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	chunk := column.NewChunk()
	for i, rc := range r.opts.Lazy {
		if err := chunk.AppendColumn(rc.Slot, cols[i]); err != nil {
			return nil, err
		}
	}
	if r.dictKeep != nil {
		chunk.Filter(r.dictKeep)
	}
	return chunk, nil
}

type pageRead struct {
	first  int64
	count  int64
	offset int64
	size   int64
}

func (r *Reader) decodeColumn(ctx context.Context, rc ReadColumn, from, n int64, wantCodes bool) (col column.Column, codes []int32, err error) {
	rg := r.f.RowGroups()[r.stripeIdx]
	pi := r.physIdx[rc.Name]
	cc := rg.ColumnChunks()[pi]
	to := from + n

	plan, haveOffsets := r.planPages(cc, rg.NumRows(), from, to)
	if len(plan) == 0 {
		return nil, nil, &ParseError{Path: r.f.Path(), Err: errors.Errorf("column %q has no pages covering rows [%d, %d)", rc.Name, from, to)}
	}

	app, err := newAppender(rc.Kind, int(n))
	if err != nil {
		return nil, nil, err
	}
	if wantCodes {
		codes = make([]int32, 0, n)
	}

	pgs := cc.Pages()
	defer errcapture.Do(&err, pgs.Close, "close pages")

	var it pageValues
	readPage := func(p pageRead) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pgs.SeekToRow(p.first); err != nil {
			return &IOError{Path: r.f.Path(), Err: errors.Wrapf(err, "seek column %q to row %d", rc.Name, p.first)}
		}
		pg, err := pgs.ReadPage()
		if err != nil {
			return &IOError{Path: r.f.Path(), Err: errors.Wrapf(err, "read column %q page at row %d", rc.Name, p.first)}
		}
		defer func() { parquet.Release(pg) }()
		it.Reset(pg)

		bl := from - p.first
		if bl < 0 {
			bl = 0
		}
		br := p.count
		if p.first+br > to {
			br = to - p.first
		}
		for j := int64(0); j < br; j++ {
			if !it.Next() {
				if it.Err() != nil {
					return &ParseError{Path: r.f.Path(), Err: it.Err()}
				}
				// Without an offset index the plan spans the whole
				// chunk; roll over to the next page.
				next, err := pgs.ReadPage()
				if err != nil {
					return &ParseError{Path: r.f.Path(), Err: errors.Wrapf(err, "column %q page at row %d ended early", rc.Name, p.first)}
				}
				parquet.Release(pg)
				pg = next
				it.Reset(pg)
				if !it.Next() {
					return &ParseError{Path: r.f.Path(), Err: errors.Errorf("column %q produced an empty page at row %d", rc.Name, p.first+j)}
				}
			}
			if j < bl {
				continue
			}
			app.append(it.At())
			if codes != nil {
				if !it.Dict() {
					// A plain-encoded spill page; codes no longer
					// cover the batch.
					codes = nil
					continue
				}
				codes = append(codes, it.Code())
			}
		}
		return nil
	}

	if haveOffsets {
		parts := r.part.Partition(len(plan), func(i int) (uint64, uint64) {
			return uint64(plan[i].offset), uint64(plan[i].offset + plan[i].size)
		})
		for _, part := range parts {
			if err := r.f.Stream().PrepareCache(ScopeRowGroup, int64(part.Start), int64(part.End-part.Start)); err != nil {
				return nil, nil, err
			}
			for _, p := range plan[part.ElemRng[0]:part.ElemRng[1]] {
				if err := readPage(p); err != nil {
					return nil, nil, err
				}
			}
		}
	} else {
		for _, p := range plan {
			if err := readPage(p); err != nil {
				return nil, nil, err
			}
		}
	}
	return app.build(), codes, nil
}

// planPages lists the pages overlapping rows [from, to). Without a usable
// offset index the whole chunk counts as one page starting at row zero.
func (r *Reader) planPages(cc parquet.ColumnChunk, stripeRows, from, to int64) ([]pageRead, bool) {
	oidx, err := cc.OffsetIndex()
	if err != nil || oidx == nil {
		return []pageRead{{first: 0, count: stripeRows}}, false
	}
	var plan []pageRead
	for i := 0; i < oidx.NumPages(); i++ {
		pfrom := oidx.FirstRowIndex(i)
		pcount := stripeRows - pfrom
		if i < oidx.NumPages()-1 {
			pcount = oidx.FirstRowIndex(i+1) - pfrom
		}
		if pfrom >= to {
			break
		}
		if pfrom+pcount <= from {
			continue
		}
		plan = append(plan, pageRead{first: pfrom, count: pcount, offset: oidx.Offset(i), size: oidx.CompressedPageSize(i)})
	}
	return plan, true
}

type valueAppender interface {
	append(v parquet.Value)
	build() column.Column
}

type scalarAppender[T column.Scalar] struct {
	b    *column.Builder[T]
	conv func(parquet.Value) T
}

func (a *scalarAppender[T]) append(v parquet.Value) {
	if v.IsNull() {
		a.b.AppendNull()
		return
	}
	a.b.Append(a.conv(v))
}

func (a *scalarAppender[T]) build() column.Column { return a.b.Build(false) }

type bytesAppender struct {
	b *column.StringBuilder
	// trimPad strips CHAR(n) disk padding so values compare unpadded.
	trimPad bool
}

func (a *bytesAppender) append(v parquet.Value) {
	if v.IsNull() {
		a.b.AppendNull()
		return
	}
	b := v.ByteArray()
	if a.trimPad {
		b = column.TrimCharPadding(b)
	}
	a.b.AppendValue(b)
}

func (a *bytesAppender) build() column.Column { return a.b.Build(false) }

func newAppender(kind column.Kind, capacity int) (valueAppender, error) {
	switch kind {
	case column.KindBool:
		return &scalarAppender[bool]{b: column.NewBuilder[bool](capacity), conv: parquet.Value.Boolean}, nil
	case column.KindInt32:
		return &scalarAppender[int32]{b: column.NewBuilder[int32](capacity), conv: parquet.Value.Int32}, nil
	case column.KindInt64, column.KindTimestamp, column.KindDecimal:
		return &scalarAppender[int64]{b: column.NewBuilder[int64](capacity), conv: asInt64}, nil
	case column.KindFloat64:
		return &scalarAppender[float64]{b: column.NewBuilder[float64](capacity), conv: asFloat64}, nil
	case column.KindString:
		return &bytesAppender{b: column.NewStringBuilder(capacity)}, nil
	case column.KindChar:
		return &bytesAppender{b: column.NewStringBuilder(capacity), trimPad: true}, nil
	}
	return nil, errors.Errorf("no decoder for column kind %s", kind)
}

func asInt64(v parquet.Value) int64 {
	if v.Kind() == parquet.Int32 {
		return int64(v.Int32())
	}
	return v.Int64()
}

func asFloat64(v parquet.Value) float64 {
	if v.Kind() == parquet.Float {
		return float64(v.Float())
	}
	return v.Double()
}
