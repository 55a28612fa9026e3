package storage

import (
	"expensetracker/internal/core"

	"github.com/google/uuid"
)

// OpKind identifies a staged write.
type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one staged write. Expense is a copy taken at staging time.
type Op struct {
	Kind    OpKind
	Expense core.Expense
}

// Batch is an ordered list of staged writes. Nothing in a batch is visible to
// readers until a UnitOfWork commits it. A Batch is owned by a single
// handler invocation and is not safe for concurrent use.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

// Add stages the insertion of e and returns its identifier.
func (b *Batch) Add(e core.Expense) uuid.UUID {
	b.ops = append(b.ops, Op{Kind: OpInsert, Expense: e})
	return e.ID
}

// Save stages an overwrite of a previously loaded expense.
func (b *Batch) Save(e core.Expense) {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Expense: e})
}

// Remove stages the hard deletion of a previously loaded expense.
func (b *Batch) Remove(e core.Expense) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Expense: e})
}

// Ops returns a copy of the staged operations in staging order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return append([]Op(nil), b.ops...)
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}
