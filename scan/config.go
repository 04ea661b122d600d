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
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/columnar-io/stripescan/stripefile"
)

// Config holds the scan tuning knobs. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// CacheCapacityBytes bounds the stream's single cache window. Reads
	// larger than this bypass the cache entirely.
	CacheCapacityBytes int64 `yaml:"cache_capacity_bytes"`

	// NaturalReadSizeBytes is the preferred sequential read span.
	NaturalReadSizeBytes int64 `yaml:"natural_read_size_bytes"`

	// NaturalReadSizeAfterSeekBytes is the preferred span for the first
	// read after a position jump.
	NaturalReadSizeAfterSeekBytes int64 `yaml:"natural_read_size_after_seek_bytes"`

	// LateMaterialization splits predicate columns from the rest, decoding
	// the rest only for rows that survive filtering.
	LateMaterialization bool `yaml:"late_materialization"`

	// RowsPerBatch is the row window size.
	RowsPerBatch int `yaml:"rows_per_batch"`

	// MaxGapSizeBytes is the widest hole between page ranges that still
	// gets coalesced into one read.
	MaxGapSizeBytes uint64 `yaml:"max_gap_size_bytes"`

	// ReaderTimezone is the timezone timestamp predicates are expressed
	// in. Empty means UTC.
	ReaderTimezone string `yaml:"reader_timezone"`
}

func DefaultConfig() Config {
	return Config{
		CacheCapacityBytes:            stripefile.DefaultCacheCapacity,
		NaturalReadSizeBytes:          stripefile.DefaultNaturalReadSize,
		NaturalReadSizeAfterSeekBytes: stripefile.DefaultNaturalReadSizeAfterSeek,
		LateMaterialization:           true,
		RowsPerBatch:                  4096,
		MaxGapSizeBytes:               64 << 10,
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse scan config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs *multierror.Error
	if c.CacheCapacityBytes <= 0 {
		errs = multierror.Append(errs, errors.Errorf("cache_capacity_bytes must be positive, got %d", c.CacheCapacityBytes))
	}
	if c.NaturalReadSizeBytes <= 0 {
		errs = multierror.Append(errs, errors.Errorf("natural_read_size_bytes must be positive, got %d", c.NaturalReadSizeBytes))
	}
	if c.NaturalReadSizeAfterSeekBytes <= 0 {
		errs = multierror.Append(errs, errors.Errorf("natural_read_size_after_seek_bytes must be positive, got %d", c.NaturalReadSizeAfterSeekBytes))
	}
	if c.NaturalReadSizeAfterSeekBytes > c.NaturalReadSizeBytes {
		errs = multierror.Append(errs, errors.New("natural_read_size_after_seek_bytes must not exceed natural_read_size_bytes"))
	}
	if c.RowsPerBatch <= 0 {
		errs = multierror.Append(errs, errors.Errorf("rows_per_batch must be positive, got %d", c.RowsPerBatch))
	}
	return errs.ErrorOrNil()
}

func (c Config) streamOptions() []stripefile.StreamOption {
	return []stripefile.StreamOption{
		stripefile.WithCacheCapacity(c.CacheCapacityBytes),
		stripefile.WithNaturalReadSize(c.NaturalReadSizeBytes),
		stripefile.WithNaturalReadSizeAfterSeek(c.NaturalReadSizeAfterSeekBytes),
	}
}
