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
	"time"

	"github.com/pkg/errors"
)

// Scope tells PrepareCache how far ahead the caller expects to read.
type Scope int

const (
	// ScopeRowGroup caches exactly the requested span.
	ScopeRowGroup Scope = iota
	// ScopeStripe expands the requested span up to the cache capacity, on
	// the expectation that the rest of the stripe is read next.
	ScopeStripe
)

const (
	DefaultNaturalReadSize          = 1 << 20
	DefaultNaturalReadSizeAfterSeek = 256 << 10
	DefaultCacheCapacity            = 8 << 20
)

// StreamOption configures a CachedFileStream.
type StreamOption func(*CachedFileStream)

func WithCacheCapacity(n int64) StreamOption {
	return func(s *CachedFileStream) { s.cacheCap = n }
}

func WithNaturalReadSize(n int64) StreamOption {
	return func(s *CachedFileStream) { s.naturalReadSize = n }
}

func WithNaturalReadSizeAfterSeek(n int64) StreamOption {
	return func(s *CachedFileStream) { s.naturalReadSizeAfterSeek = n }
}

// CachedFileStream serves positioned reads over a Source through a single
// contiguous cache window. Reads inside the window are memory copies; reads
// outside it go straight to the source without disturbing the window. It is
// not safe for concurrent use; the decode layer serializes access per file.
type CachedFileStream struct {
	src    Source
	path   string
	length int64
	stats  *ScanStats

	cacheCap                 int64
	naturalReadSize          int64
	naturalReadSizeAfterSeek int64

	cache    []byte
	cacheOff int64
	// seqOff is the byte position one past the last cache fill; a request
	// starting there continues a sequential walk.
	seqOff int64
}

// NewCachedFileStream wraps src. length is the total file length; stats may
// be shared across streams of one scan.
func NewCachedFileStream(src Source, path string, length int64, stats *ScanStats, opts ...StreamOption) *CachedFileStream {
	s := &CachedFileStream{
		src:                      src,
		path:                     path,
		length:                   length,
		stats:                    stats,
		cacheCap:                 DefaultCacheCapacity,
		naturalReadSize:          DefaultNaturalReadSize,
		naturalReadSizeAfterSeek: DefaultNaturalReadSizeAfterSeek,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *CachedFileStream) Length() int64 { return s.length }

func (s *CachedFileStream) Path() string { return s.path }

// NaturalReadSize is the preferred span for sequential prefetch.
func (s *CachedFileStream) NaturalReadSize() int64 { return s.naturalReadSize }

// NaturalReadSizeAfterSeek is the preferred span for the first read after a
// position jump, where the access pattern is not yet known.
func (s *CachedFileStream) NaturalReadSizeAfterSeek() int64 { return s.naturalReadSizeAfterSeek }

// PrepareCache populates the cache window with [offset, offset+length).
// Requests larger than the capacity are ignored rather than partially cached.
// A request already covered by the window is a no-op. Row-group requests are
// rounded up to the natural read size, or the smaller after-seek size when
// the request jumps away from the previous fill.
func (s *CachedFileStream) PrepareCache(scope Scope, offset, length int64) error {
	if offset < 0 || offset > s.length {
		return &ParseError{Path: s.path, Err: errors.Errorf("cache offset %d out of range [0, %d]", offset, s.length)}
	}
	if length > s.cacheCap {
		return nil
	}
	if s.covers(offset, length) {
		return nil
	}
	switch scope {
	case ScopeStripe:
		length = s.cacheCap
	case ScopeRowGroup:
		natural := s.naturalReadSizeAfterSeek
		if offset == s.seqOff {
			natural = s.naturalReadSize
		}
		if length < natural {
			length = natural
		}
		if length > s.cacheCap {
			length = s.cacheCap
		}
	}
	if offset+length > s.length {
		length = s.length - offset
	}
	if length <= 0 {
		return nil
	}
	if int64(cap(s.cache)) < length {
		s.cache = make([]byte, length)
	}
	s.cache = s.cache[:length]
	if err := s.readDirect(s.cache, offset); err != nil {
		s.cache = s.cache[:0]
		return err
	}
	s.cacheOff = offset
	s.seqOff = offset + length
	return nil
}

// Read fills buf from the given offset, serving from the cache window when
// covered. Short reads are errors.
func (s *CachedFileStream) Read(buf []byte, offset int64) error {
	if buf == nil {
		return &ParseError{Path: s.path, Err: errors.New("destination buffer is nil")}
	}
	n := int64(len(buf))
	if n == 0 {
		return nil
	}
	if offset < 0 || offset+n > s.length {
		return &ParseError{Path: s.path, Err: errors.Errorf("read [%d, %d) out of range [0, %d)", offset, offset+n, s.length)}
	}
	if s.covers(offset, n) {
		copy(buf, s.cache[offset-s.cacheOff:])
		return nil
	}
	return s.readDirect(buf, offset)
}

// ReadAt adapts the stream to io.ReaderAt for the footer and index decoder.
func (s *CachedFileStream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.Read(p, off); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *CachedFileStream) Close() error { return s.src.Close() }

func (s *CachedFileStream) covers(offset, length int64) bool {
	return len(s.cache) > 0 && offset >= s.cacheOff && offset+length <= s.cacheOff+int64(len(s.cache))
}

func (s *CachedFileStream) readDirect(buf []byte, offset int64) error {
	start := time.Now()
	n, err := s.src.ReadAt(buf, offset)
	if s.stats != nil {
		s.stats.IOCount.Add(1)
		s.stats.IONanos.Add(time.Since(start).Nanoseconds())
		s.stats.BytesRead.Add(int64(n))
	}
	if err != nil && !(n == len(buf)) {
		return &IOError{Path: s.path, Err: err}
	}
	if n < len(buf) {
		return &IOError{Path: s.path, Err: errors.Errorf("short read: got %d of %d bytes at %d", n, len(buf), offset)}
	}
	return nil
}
