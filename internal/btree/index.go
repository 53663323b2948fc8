package btree

import "github.com/njudb/njudb/internal/heap"

// Index is the capability the planner/executor need from an ordered index;
// *Tree satisfies it.
type Index interface {
	Insert(key KeyType, tid heap.TID) error
	SearchEqual(key KeyType) ([]heap.TID, error)
	RangeScan(minKey, maxKey KeyType) ([]heap.TID, error)
}

// KeyType is the key this tree orders by. Fixed to int64 in this iteration;
// the node layouts only assume a fixed key width, so widening to a composite
// key schema changes keySize and the compare, nothing structural.
type KeyType = int64

const keySize = 8
