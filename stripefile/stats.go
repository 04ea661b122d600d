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

import "sync/atomic"

// ScanStats is the counter set a scan exposes to external schedulers. All
// fields are safe for concurrent updates; there is no internal locking
// anywhere else, so these are the only values a caller may read while a scan
// is in flight.
type ScanStats struct {
	IOCount     atomic.Int64
	BytesRead   atomic.Int64
	IONanos     atomic.Int64
	RawRowsRead atomic.Int64
	ColumnRead  atomic.Int64 // nanoseconds
	ColumnConv  atomic.Int64 // nanoseconds
	ExprFilter  atomic.Int64 // nanoseconds
	ReaderInit  atomic.Int64 // nanoseconds
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	IOCount      int64
	BytesRead    int64
	IONanos      int64
	RawRowsRead  int64
	ColumnReadNs int64
	ColumnConvNs int64
	ExprFilterNs int64
	ReaderInitNs int64
}

func (s *ScanStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		IOCount:      s.IOCount.Load(),
		BytesRead:    s.BytesRead.Load(),
		IONanos:      s.IONanos.Load(),
		RawRowsRead:  s.RawRowsRead.Load(),
		ColumnReadNs: s.ColumnRead.Load(),
		ColumnConvNs: s.ColumnConv.Load(),
		ExprFilterNs: s.ExprFilter.Load(),
		ReaderInitNs: s.ReaderInit.Load(),
	}
}
