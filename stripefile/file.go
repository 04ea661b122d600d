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

// Package stripefile is the decode layer: it opens a columnar file through a
// CachedFileStream, exposes its stripes and dictionaries, and decodes row
// windows into columnar chunks.
package stripefile

import (
	"context"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

// WriterTimezoneKey is the file metadata key carrying the timezone the writer
// encoded timestamp statistics in.
const WriterTimezoneKey = "writer.time.zone"

// StripeInfo describes one stripe's physical placement in the file.
type StripeInfo struct {
	Offset   uint64
	Length   uint64
	RowCount int64
}

type openOptions struct {
	hiveColumnNames []string
	fileOptions     []parquet.FileOption
	streamOptions   []StreamOption
}

type OpenOption func(*openOptions)

// WithHiveColumnNames renames the file's physical columns by position. Used
// when table metadata carries the authoritative names and the file schema
// does not.
func WithHiveColumnNames(names []string) OpenOption {
	return func(o *openOptions) { o.hiveColumnNames = names }
}

func WithFileOptions(opts ...parquet.FileOption) OpenOption {
	return func(o *openOptions) { o.fileOptions = append(o.fileOptions, opts...) }
}

func WithStreamOptions(opts ...StreamOption) OpenOption {
	return func(o *openOptions) { o.streamOptions = append(o.streamOptions, opts...) }
}

// StripeFile is an open columnar file. All reads flow through its stream, so
// the file counts IO against the scan's stats.
type StripeFile struct {
	pf     *parquet.File
	stream *CachedFileStream
	path   string

	stripes    []StripeInfo
	leafNames  []string
	leafByName map[string]int
}

// Open decodes the footer through the stream and indexes the stripes.
func Open(stream *CachedFileStream, opts ...OpenOption) (*StripeFile, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	pf, err := parquet.OpenFile(stream, stream.Length(), o.fileOptions...)
	if err != nil {
		return nil, &ParseError{Path: stream.Path(), Err: err}
	}

	f := &StripeFile{
		pf:     pf,
		stream: stream,
		path:   stream.Path(),
	}
	if err := f.indexStripes(); err != nil {
		return nil, err
	}
	if err := f.indexColumns(o.hiveColumnNames); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFromFile opens a local file. The handle is owned by the returned
// StripeFile.
func OpenFromFile(path string, stats *ScanStats, opts ...OpenOption) (*StripeFile, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	h, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	stat, err := h.Stat()
	if err != nil {
		_ = h.Close()
		return nil, &IOError{Path: path, Err: err}
	}
	stream := NewCachedFileStream(NewFileSource(h, true), path, stat.Size(), stats, o.streamOptions...)
	f, err := Open(stream, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return f, nil
}

// OpenFromBucket opens an object through ranged reads. ctx bounds every read
// issued for the file's lifetime.
func OpenFromBucket(ctx context.Context, bkt objstore.BucketReader, name string, stats *ScanStats, opts ...OpenOption) (*StripeFile, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	attr, err := bkt.Attributes(ctx, name)
	if err != nil {
		return nil, &IOError{Path: name, Err: err}
	}
	stream := NewCachedFileStream(NewBucketSource(ctx, bkt, name), name, attr.Size, stats, o.streamOptions...)
	f, err := Open(stream, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return f, nil
}

func (f *StripeFile) indexStripes() error {
	meta := f.pf.Metadata()
	f.stripes = make([]StripeInfo, 0, len(meta.RowGroups))
	for _, rg := range meta.RowGroups {
		if len(rg.Columns) == 0 {
			return &ParseError{Path: f.path, Err: errors.New("stripe without columns")}
		}
		var offset, length int64
		for i, col := range rg.Columns {
			start := col.MetaData.DataPageOffset
			if col.MetaData.DictionaryPageOffset > 0 && col.MetaData.DictionaryPageOffset < start {
				start = col.MetaData.DictionaryPageOffset
			}
			if i == 0 || start < offset {
				offset = start
			}
			length += col.MetaData.TotalCompressedSize
		}
		f.stripes = append(f.stripes, StripeInfo{
			Offset:   uint64(offset),
			Length:   uint64(length),
			RowCount: rg.NumRows,
		})
	}
	return nil
}

func (f *StripeFile) indexColumns(hiveNames []string) error {
	cols := f.pf.Schema().Columns()
	f.leafNames = make([]string, len(cols))
	f.leafByName = make(map[string]int, len(cols))
	for i, path := range cols {
		if len(path) != 1 {
			return &ParseError{Path: f.path, Err: errors.Errorf("nested column %v not supported", path)}
		}
		name := path[0]
		if len(hiveNames) > 0 {
			if i >= len(hiveNames) {
				return &ParseError{Path: f.path, Err: errors.Errorf("file has %d columns, table metadata names %d", len(cols), len(hiveNames))}
			}
			name = hiveNames[i]
		}
		f.leafNames[i] = name
		f.leafByName[name] = i
	}
	return nil
}

func (f *StripeFile) Path() string { return f.path }

func (f *StripeFile) Stream() *CachedFileStream { return f.stream }

func (f *StripeFile) Stripes() []StripeInfo { return f.stripes }

func (f *StripeFile) NumRows() int64 { return f.pf.NumRows() }

// ColumnNames returns the leaf column names, after hive renaming.
func (f *StripeFile) ColumnNames() []string { return f.leafNames }

// LookupColumn maps a (possibly renamed) column name to its physical index.
func (f *StripeFile) LookupColumn(name string) (int, bool) {
	i, ok := f.leafByName[name]
	return i, ok
}

// LeafType returns the physical parquet type of a column.
func (f *StripeFile) LeafType(physIdx int) parquet.Type {
	return f.pf.Root().Column(f.pf.Schema().Columns()[physIdx][0]).Type()
}

// Lookup reads a file metadata key/value entry.
func (f *StripeFile) Lookup(key string) (string, bool) {
	return f.pf.Lookup(key)
}

// WriterTimezone returns the timezone recorded by the writer, or "" when the
// file carries none.
func (f *StripeFile) WriterTimezone() string {
	v, _ := f.pf.Lookup(WriterTimezoneKey)
	return v
}

// RowGroups exposes the underlying stripe handles to the reader.
func (f *StripeFile) RowGroups() []parquet.RowGroup { return f.pf.RowGroups() }

// BloomCheck probes the stripe's bloom filter for a value. might is true when
// the value may be present, or when the column carries no filter.
func (f *StripeFile) BloomCheck(stripeIdx, physIdx int, v parquet.Value) (bool, error) {
	cc := f.pf.RowGroups()[stripeIdx].ColumnChunks()[physIdx]
	bf := cc.BloomFilter()
	if bf == nil {
		return true, nil
	}
	return bf.Check(v)
}

// Close releases the stream and the source behind it.
func (f *StripeFile) Close() error {
	return f.stream.Close()
}
