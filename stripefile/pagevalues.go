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
	"io"
	"slices"

	"github.com/parquet-go/parquet-go"
)

// symbolTable resolves per-row dictionary codes of one page. Code -1 is null.
type symbolTable struct {
	dict parquet.Dictionary
	syms []int32
	defs []byte
}

func (s *symbolTable) Reset(pg parquet.Page) {
	dict := pg.Dictionary()
	data := pg.Data()
	syms := data.Int32()
	s.defs = pg.DefinitionLevels()

	// Required columns carry no definition levels; every row has a code.
	if len(s.defs) == 0 {
		s.syms = append(s.syms[:0], syms...)
		s.dict = dict
		return
	}

	if s.syms == nil {
		s.syms = make([]int32, len(s.defs))
	} else {
		s.syms = slices.Grow(s.syms, len(s.defs))[:len(s.defs)]
	}

	sidx := 0
	for i := range s.defs {
		if s.defs[i] == 1 {
			s.syms[i] = syms[sidx]
			sidx++
		}
	}
	s.dict = dict
}

func (s *symbolTable) GetIndex(i int) int32 {
	if len(s.defs) == 0 || s.defs[i] == 1 {
		return s.syms[i]
	}
	return -1
}

func (s *symbolTable) Get(i int) parquet.Value {
	idx := s.GetIndex(i)
	if idx < 0 {
		return parquet.NullValue()
	}
	return s.dict.Index(idx)
}

// pageValues yields the values of one page in row order. Dictionary pages go
// through the symbol table, which also exposes the per-row code; other
// encodings fall back to the page's value reader and report code -1 for every
// row. Values are valid until the page is released, so callers copy what they
// keep.
type pageValues struct {
	p  parquet.Page
	st symbolTable

	vr     parquet.ValueReader
	buffer []parquet.Value
	bufIdx int

	current int
	err     error
}

func (pi *pageValues) Reset(p parquet.Page) {
	pi.p = p
	pi.vr = nil
	if p.Dictionary() != nil {
		pi.st.Reset(p)
	} else {
		pi.vr = p.Values()
		if pi.buffer == nil {
			pi.buffer = make([]parquet.Value, 0, 128)
		} else {
			pi.buffer = pi.buffer[:0]
		}
		pi.bufIdx = -1
	}
	pi.current = -1
	pi.err = nil
}

func (pi *pageValues) Next() bool {
	if pi.err != nil {
		return false
	}
	pi.current++
	if pi.current >= int(pi.p.NumRows()) {
		return false
	}
	if pi.vr == nil {
		return true
	}

	pi.bufIdx++
	if pi.bufIdx == len(pi.buffer) {
		n, err := pi.vr.ReadValues(pi.buffer[:cap(pi.buffer)])
		if err != nil && err != io.EOF {
			pi.err = err
			return false
		}
		pi.buffer = pi.buffer[:n]
		pi.bufIdx = 0
		if n == 0 {
			pi.err = io.ErrUnexpectedEOF
			return false
		}
	}
	return true
}

func (pi *pageValues) At() parquet.Value {
	if pi.vr == nil {
		return pi.st.Get(pi.current)
	}
	return pi.buffer[pi.bufIdx]
}

// Code returns the dictionary code of the current row, or -1 for null.
// Only meaningful when Dict reports true.
func (pi *pageValues) Code() int32 {
	return pi.st.GetIndex(pi.current)
}

// Dict reports whether the current page is dictionary encoded.
func (pi *pageValues) Dict() bool { return pi.vr == nil }

func (pi *pageValues) Err() error { return pi.err }
