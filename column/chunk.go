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

package column

import "fmt"

// Chunk is a row-aligned batch of columns keyed by slot id. Columns are
// indexed by id, never by position, so independently decoded column sets can
// be recombined regardless of decode order; the order slice only records the
// emission order.
type Chunk struct {
	order []SlotID
	cols  map[SlotID]Column
}

func NewChunk() *Chunk {
	return &Chunk{cols: make(map[SlotID]Column)}
}

// AppendColumn adds col under slot. The column must have the same length as
// the columns already present.
func (c *Chunk) AppendColumn(slot SlotID, col Column) error {
	if _, ok := c.cols[slot]; ok {
		return fmt.Errorf("chunk: duplicate slot %d", slot)
	}
	if len(c.order) > 0 && col.Len() != c.NumRows() {
		return fmt.Errorf("chunk: slot %d has %d rows, chunk has %d", slot, col.Len(), c.NumRows())
	}
	c.order = append(c.order, slot)
	c.cols[slot] = col
	return nil
}

func (c *Chunk) Column(slot SlotID) (Column, bool) {
	col, ok := c.cols[slot]
	return col, ok
}

func (c *Chunk) Slots() []SlotID { return c.order }

func (c *Chunk) NumColumns() int { return len(c.order) }

func (c *Chunk) NumRows() int {
	if len(c.order) == 0 {
		return 0
	}
	return c.cols[c.order[0]].Len()
}

// Filter compacts every column to the surviving rows of keep.
func (c *Chunk) Filter(keep *Bitmap) {
	for slot, col := range c.cols {
		c.cols[slot] = col.Filter(keep)
	}
}

// Merge moves the columns of other into c, keyed by slot id. Row counts must
// match; duplicate slots are an error.
func (c *Chunk) Merge(other *Chunk) error {
	for _, slot := range other.order {
		if err := c.AppendColumn(slot, other.cols[slot]); err != nil {
			return err
		}
	}
	return nil
}

// Reorder rewrites the emission order to match the caller-supplied template.
// Every template slot must be present in the chunk.
func (c *Chunk) Reorder(template []SlotID) error {
	if len(template) != len(c.order) {
		return fmt.Errorf("chunk: template has %d slots, chunk has %d", len(template), len(c.order))
	}
	for _, slot := range template {
		if _, ok := c.cols[slot]; !ok {
			return fmt.Errorf("chunk: template slot %d not present", slot)
		}
	}
	c.order = append(c.order[:0], template...)
	return nil
}
