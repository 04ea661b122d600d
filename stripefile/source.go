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
	"os"

	"github.com/efficientgo/core/errcapture"
	"github.com/thanos-io/objstore"
)

// Source is the raw byte supplier behind a CachedFileStream.
type Source interface {
	io.ReaderAt
	io.Closer
}

type fileSource struct {
	f     *os.File
	owned bool
}

// NewFileSource wraps an open file. With owned false the handle is borrowed
// and Close is a no-op; the handle must outlive the stream.
func NewFileSource(f *os.File, owned bool) Source {
	return &fileSource{f: f, owned: owned}
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.f.Close()
}

type bucketSource struct {
	ctx  context.Context
	bkt  objstore.BucketReader
	name string
}

// NewBucketSource reads an object through ranged gets. The context bounds
// every read issued through the source.
func NewBucketSource(ctx context.Context, bkt objstore.BucketReader, name string) Source {
	return &bucketSource{ctx: ctx, bkt: bkt, name: name}
}

func (s *bucketSource) ReadAt(p []byte, off int64) (n int, err error) {
	rc, err := s.bkt.GetRange(s.ctx, s.name, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer errcapture.Do(&err, rc.Close, "close range reader")
	return io.ReadFull(rc, p)
}

func (s *bucketSource) Close() error { return nil }
