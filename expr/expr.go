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

// Package expr is the pushdown subset of the expression evaluator: single
// column predicates with SQL tri-state semantics. The scan core only ever
// composes predicates by AND, treating null as false at the point a row is
// kept or dropped, but the tri-state result itself is preserved so that
// min/max pruning can tell "provably false" from "unknown".
package expr

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/columnar-io/stripescan/column"
)

// Tristate is the result of evaluating a predicate against one value.
type Tristate int8

const (
	False Tristate = iota
	True
	Null
)

func (t Tristate) String() string {
	switch t {
	case False:
		return "false"
	case True:
		return "true"
	}
	return "null"
}

// Predicate constrains a single slot. Implementations must be pure:
// evaluation never mutates the predicate.
type Predicate interface {
	fmt.Stringer

	// Slot is the logical column the predicate reads.
	Slot() column.SlotID

	// Match evaluates the predicate against one value with null-aware
	// semantics. Errors mean the comparison was not possible (e.g. kind
	// mismatch); callers in pruning paths must treat them as inconclusive.
	Match(v parquet.Value) (Tristate, error)
}

// Op is a comparison operator.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	}
	return "?"
}

// Comparison is the extended interface of predicates built by Cmp. Pruning
// layers use the operator and operand to derive bound checks and bloom
// filter probes.
type Comparison interface {
	Predicate
	Op() Op
	Operand() parquet.Value
}

type cmpPredicate struct {
	slot    column.SlotID
	op      Op
	operand parquet.Value
}

// Cmp builds a comparison predicate against a constant operand.
func Cmp(slot column.SlotID, op Op, operand parquet.Value) Predicate {
	return &cmpPredicate{slot: slot, op: op, operand: operand}
}

func (p *cmpPredicate) Slot() column.SlotID { return p.slot }

func (p *cmpPredicate) Op() Op { return p.op }

func (p *cmpPredicate) Operand() parquet.Value { return p.operand }

func (p *cmpPredicate) String() string {
	return fmt.Sprintf("slot(%d) %s %v", p.slot, p.op, p.operand)
}

func (p *cmpPredicate) Match(v parquet.Value) (Tristate, error) {
	if v.IsNull() || p.operand.IsNull() {
		return Null, nil
	}
	c, err := Compare(v, p.operand)
	if err != nil {
		return Null, err
	}
	var r bool
	switch p.op {
	case Eq:
		r = c == 0
	case Ne:
		r = c != 0
	case Lt:
		r = c < 0
	case Le:
		r = c <= 0
	case Gt:
		r = c > 0
	case Ge:
		r = c >= 0
	}
	if r {
		return True, nil
	}
	return False, nil
}

type nullPredicate struct {
	slot   column.SlotID
	isNull bool
}

// IsNull matches rows whose value is null.
func IsNull(slot column.SlotID) Predicate {
	return &nullPredicate{slot: slot, isNull: true}
}

// IsNotNull matches rows whose value is not null.
func IsNotNull(slot column.SlotID) Predicate {
	return &nullPredicate{slot: slot, isNull: false}
}

func (p *nullPredicate) Slot() column.SlotID { return p.slot }

func (p *nullPredicate) String() string {
	if p.isNull {
		return fmt.Sprintf("slot(%d) is null", p.slot)
	}
	return fmt.Sprintf("slot(%d) is not null", p.slot)
}

func (p *nullPredicate) Match(v parquet.Value) (Tristate, error) {
	if v.IsNull() == p.isNull {
		return True, nil
	}
	return False, nil
}

// Compare orders two non-null scalar values. Integer kinds compare widened
// to int64 and mix with floating point through float64; byte arrays compare
// lexicographically.
func Compare(a, b parquet.Value) (int, error) {
	ak, bk := a.Kind(), b.Kind()
	switch {
	case ak == parquet.Boolean && bk == parquet.Boolean:
		return boolCompare(a.Boolean(), b.Boolean()), nil
	case isBytesKind(ak) && isBytesKind(bk):
		return bytes.Compare(a.ByteArray(), b.ByteArray()), nil
	case isIntKind(ak) && isIntKind(bk):
		return intCompare(intOf(a), intOf(b)), nil
	case isNumericKind(ak) && isNumericKind(bk):
		af, bf := floatOf(a), floatOf(b)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expr: cannot compare %s with %s", ak, bk)
}

func isBytesKind(k parquet.Kind) bool {
	return k == parquet.ByteArray || k == parquet.FixedLenByteArray
}

func isIntKind(k parquet.Kind) bool {
	return k == parquet.Int32 || k == parquet.Int64
}

func isNumericKind(k parquet.Kind) bool {
	return isIntKind(k) || k == parquet.Float || k == parquet.Double
}

func intOf(v parquet.Value) int64 {
	if v.Kind() == parquet.Int32 {
		return int64(v.Int32())
	}
	return v.Int64()
}

func floatOf(v parquet.Value) float64 {
	switch v.Kind() {
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	}
	return v.Double()
}

func intCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}
