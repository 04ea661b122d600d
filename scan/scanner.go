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

// Package scan orchestrates a filtered columnar scan over one file: it opens
// the file, splits columns into eager and lazy sets, prunes stripes and row
// windows through statistics, dictionaries and bloom filters, and emits
// chunks in the caller's column order.
package scan

import (
	"context"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/columnar-io/stripescan/column"
	"github.com/columnar-io/stripescan/expr"
	"github.com/columnar-io/stripescan/stripefile"
	"github.com/columnar-io/stripescan/util"
)

type scanState int

const (
	stateUnopened scanState = iota
	stateOpened
	stateClosed
	// stateSkippedFile means Open proved statically that no row of the
	// file can match; the scan emits nothing without reading data.
	stateSkippedFile
)

// ScannerOption configures a Scanner beyond its required arguments.
type ScannerOption func(*Scanner)

// WithScanRanges restricts the scanner to stripes starting inside the given
// byte ranges. Instances sharing a file split it by ranges.
func WithScanRanges(ranges []ScanRange) ScannerOption {
	return func(s *Scanner) { s.ranges = append([]ScanRange{}, ranges...) }
}

// WithPartitionValue supplies the constant value of a column that is not
// stored in the file but derived from its path.
func WithPartitionValue(name string, v parquet.Value) ScannerOption {
	return func(s *Scanner) { s.partitions[name] = v }
}

// WithHiveColumnNames renames the file's physical columns by position, for
// tables whose authoritative names live in table metadata.
func WithHiveColumnNames(names []string) ScannerOption {
	return func(s *Scanner) { s.hiveNames = append([]string{}, names...) }
}

type constCol struct {
	slot column.SlotID
	val  parquet.Value
}

// Scanner reads one file. Typical use:
//
//	sc, _ := scan.NewFileScanner(cfg, path, columns, preds)
//	if err := sc.Open(ctx); err != nil { ... }
//	defer sc.Close()
//	for {
//		chunk, err := sc.NextChunk(ctx)
//		if err == io.EOF { break }
//		...
//	}
//
// Not safe for concurrent use.
type Scanner struct {
	id      string
	cfg     Config
	path    string
	bkt     objstore.BucketReader
	columns []stripefile.ReadColumn
	preds   []expr.Predicate

	ranges     []ScanRange
	partitions map[string]parquet.Value
	hiveNames  []string

	stats    *stripefile.ScanStats
	f        *stripefile.StripeFile
	reader   *stripefile.Reader
	dictEval *dictFilterEvaluator

	template  []column.SlotID
	constCols []constCol
	hasLazy   bool

	state scanState
	done  bool
}

// NewFileScanner scans a local file.
func NewFileScanner(cfg Config, path string, columns []stripefile.ReadColumn, preds []expr.Predicate, opts ...ScannerOption) (*Scanner, error) {
	return newScanner(cfg, path, nil, columns, preds, opts)
}

// NewBucketScanner scans an object through ranged reads.
func NewBucketScanner(cfg Config, bkt objstore.BucketReader, name string, columns []stripefile.ReadColumn, preds []expr.Predicate, opts ...ScannerOption) (*Scanner, error) {
	return newScanner(cfg, name, bkt, columns, preds, opts)
}

func newScanner(cfg Config, path string, bkt objstore.BucketReader, columns []stripefile.ReadColumn, preds []expr.Predicate, opts []ScannerOption) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("scan: no columns requested")
	}
	slots := make(map[column.SlotID]bool, len(columns))
	for _, rc := range columns {
		if slots[rc.Slot] {
			return nil, errors.Errorf("scan: duplicate slot %d", rc.Slot)
		}
		slots[rc.Slot] = true
	}
	for _, p := range preds {
		if !slots[p.Slot()] {
			return nil, errors.Errorf("scan: predicate %s references a slot that is not scanned", p)
		}
	}
	s := &Scanner{
		id:         ulid.Make().String(),
		cfg:        cfg,
		path:       path,
		bkt:        bkt,
		columns:    append([]stripefile.ReadColumn{}, columns...),
		preds:      append([]expr.Predicate{}, preds...),
		partitions: make(map[string]parquet.Value),
		stats:      &stripefile.ScanStats{},
	}
	for _, o := range opts {
		o(s)
	}
	s.template = make([]column.SlotID, len(s.columns))
	for i, rc := range s.columns {
		s.template[i] = rc.Slot
	}
	return s, nil
}

func (s *Scanner) ID() string { return s.id }

// Skipped reports whether Open proved the whole file irrelevant.
func (s *Scanner) Skipped() bool { return s.state == stateSkippedFile }

// Stats returns a snapshot of the scan counters. Safe to call concurrently
// with the scan.
func (s *Scanner) Stats() stripefile.StatsSnapshot { return s.stats.Snapshot() }

// Open reads the footer, resolves columns against the file schema and builds
// the pruning chain. ctx bounds all IO issued for the scanner's lifetime
// when reading from a bucket.
func (s *Scanner) Open(ctx context.Context) (err error) {
	if s.state != stateUnopened {
		return errors.New("scan: already opened")
	}
	start := time.Now()
	defer func() { s.stats.ReaderInit.Add(time.Since(start).Nanoseconds()) }()

	ctx, span := util.Tracer().Start(ctx, "Scanner.Open", trace.WithAttributes(
		attribute.String("scan.id", s.id),
		attribute.String("scan.path", s.path),
		attribute.Int("scan.columns", len(s.columns)),
	))
	defer span.End()

	fileOpts := []stripefile.OpenOption{stripefile.WithStreamOptions(s.cfg.streamOptions()...)}
	if len(s.hiveNames) > 0 {
		fileOpts = append(fileOpts, stripefile.WithHiveColumnNames(s.hiveNames))
	}
	if s.bkt != nil {
		s.f, err = stripefile.OpenFromBucket(ctx, s.bkt, s.path, s.stats, fileOpts...)
	} else {
		s.f, err = stripefile.OpenFromFile(s.path, s.stats, fileOpts...)
	}
	if err != nil {
		return err
	}

	var fileCols []stripefile.ReadColumn
	for _, rc := range s.columns {
		if _, ok := s.f.LookupColumn(rc.Name); ok {
			fileCols = append(fileCols, rc)
			continue
		}
		val := parquet.NullValue()
		if pv, ok := s.partitions[rc.Name]; ok {
			val = pv
		}
		s.constCols = append(s.constCols, constCol{slot: rc.Slot, val: val})
	}

	if s.skipFileStatically() {
		span.SetAttributes(attribute.Bool("scan.skipped_file", true))
		_ = s.f.Close()
		s.f = nil
		s.state = stateSkippedFile
		return nil
	}

	predsBySlot := make(map[column.SlotID][]expr.Predicate)
	for _, p := range s.preds {
		predsBySlot[p.Slot()] = append(predsBySlot[p.Slot()], p)
	}

	var eager, lazy []stripefile.ReadColumn
	if s.cfg.LateMaterialization && len(predsBySlot) > 0 {
		for _, rc := range fileCols {
			if len(predsBySlot[rc.Slot]) > 0 {
				eager = append(eager, rc)
			} else {
				lazy = append(lazy, rc)
			}
		}
		if len(eager) == 0 {
			// No predicate touches a file column; a split buys nothing.
			eager, lazy = fileCols, nil
		}
	} else {
		eager = fileCols
	}
	s.hasLazy = len(lazy) > 0

	var dictCols []stripefile.ReadColumn
	for _, rc := range eager {
		if (rc.Kind == column.KindString || rc.Kind == column.KindChar) && len(predsBySlot[rc.Slot]) > 0 {
			dictCols = append(dictCols, rc)
		}
	}
	if len(dictCols) > 0 {
		s.dictEval = newDictFilterEvaluator(dictCols, predsBySlot, s.cfg.RowsPerBatch)
	}

	var statCols []string
	bindings := make(map[column.SlotID]slotBinding)
	for _, rc := range s.columns {
		if len(predsBySlot[rc.Slot]) == 0 {
			continue
		}
		_, inFile := s.f.LookupColumn(rc.Name)
		pv, hasPartition := s.partitions[rc.Name]
		bindings[rc.Slot] = slotBinding{
			name:         rc.Name,
			kind:         rc.Kind,
			inFile:       inFile,
			partition:    pv,
			hasPartition: hasPartition,
		}
		if inFile && hasComparison(predsBySlot[rc.Slot]) {
			statCols = append(statCols, rc.Name)
		}
	}
	filter := &rowFilter{
		pruner:   newPruner(s.f, s.ranges, s.preds, bindings, s.cfg.ReaderTimezone),
		dictEval: s.dictEval,
	}

	s.reader, err = stripefile.NewReader(s.f, stripefile.ReaderOptions{
		RowsPerBatch: s.cfg.RowsPerBatch,
		Eager:        eager,
		Lazy:         lazy,
		StatColumns:  statCols,
		DictColumns:  dictCols,
		Filter:       filter,
		MaxGapSize:   s.cfg.MaxGapSizeBytes,
	})
	if err != nil {
		_ = s.f.Close()
		s.f = nil
		return err
	}
	s.state = stateOpened
	return nil
}

// skipFileStatically proves, from constant columns alone, that no row of the
// file can satisfy the predicates. A predicate over an absent column
// evaluates against null (or the partition constant) identically for every
// row, so one synthetic row decides the whole file.
func (s *Scanner) skipFileStatically() bool {
	if len(s.constCols) == 0 {
		return false
	}
	chunk := column.NewChunk()
	constSlots := make(map[column.SlotID]bool, len(s.constCols))
	for _, cc := range s.constCols {
		if err := chunk.AppendColumn(cc.slot, constColumn(cc.val, 1)); err != nil {
			return false
		}
		constSlots[cc.slot] = true
	}
	var constPreds []expr.Predicate
	for _, p := range s.preds {
		if constSlots[p.Slot()] {
			constPreds = append(constPreds, p)
		}
	}
	if len(constPreds) == 0 {
		return false
	}
	keep := column.NewBitmap(1)
	n, err := expr.EvaluateIntoBitmap(constPreds, chunk, keep)
	return err == nil && n == 0
}

// NextChunk returns the next batch of matching rows, columns ordered as
// requested at construction. io.EOF ends the scan.
func (s *Scanner) NextChunk(ctx context.Context) (*column.Chunk, error) {
	switch s.state {
	case stateUnopened:
		return nil, errors.New("scan: not opened")
	case stateClosed:
		return nil, errors.New("scan: closed")
	case stateSkippedFile:
		return nil, io.EOF
	}
	if s.done {
		return nil, io.EOF
	}
	for {
		readStart := time.Now()
		pos, err := s.reader.ReadNext(ctx)
		s.stats.ColumnRead.Add(time.Since(readStart).Nanoseconds())
		if err == io.EOF {
			s.done = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		s.stats.RawRowsRead.Add(int64(pos.NumRows))

		if s.dictEval != nil {
			s.reader.ApplyDictFilter(s.dictEval.Filters())
		}
		n := s.reader.BatchRows()
		if n == 0 {
			continue
		}
		chunk := s.reader.EagerChunk()
		for _, cc := range s.constCols {
			if err := chunk.AppendColumn(cc.slot, constColumn(cc.val, n)); err != nil {
				return nil, err
			}
		}

		survivors := n
		var keep *column.Bitmap
		if len(s.preds) > 0 {
			keep = column.NewBitmap(n)
			filterStart := time.Now()
			survivors, err = expr.EvaluateIntoBitmap(s.preds, chunk, keep)
			s.stats.ExprFilter.Add(time.Since(filterStart).Nanoseconds())
			if err != nil {
				return nil, err
			}
			if survivors == 0 {
				continue
			}
			if survivors < n {
				convStart := time.Now()
				chunk.Filter(keep)
				s.stats.ColumnConv.Add(time.Since(convStart).Nanoseconds())
			}
		}

		if s.hasLazy {
			lazyStart := time.Now()
			lazyChunk, err := s.reader.LazyRead(ctx, pos)
			s.stats.ColumnRead.Add(time.Since(lazyStart).Nanoseconds())
			if err != nil {
				return nil, err
			}
			if survivors < n {
				lazyChunk.Filter(keep)
			}
			convStart := time.Now()
			if err := chunk.Merge(lazyChunk); err != nil {
				return nil, err
			}
			s.stats.ColumnConv.Add(time.Since(convStart).Nanoseconds())
		}

		if err := chunk.Reorder(s.template); err != nil {
			return nil, err
		}
		return chunk, nil
	}
}

// Close releases the file. It never fails and is safe to call more than
// once, in any state.
func (s *Scanner) Close() {
	if s.state == stateClosed {
		return
	}
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	s.reader = nil
	s.state = stateClosed
}

func constColumn(v parquet.Value, n int) column.Column {
	if v.IsNull() {
		return column.NewConstNull(n)
	}
	return column.NewConst(v, n)
}

func hasComparison(preds []expr.Predicate) bool {
	for _, p := range preds {
		if c, ok := p.(expr.Comparison); ok && c.Op() != expr.Ne {
			return true
		}
	}
	return false
}
