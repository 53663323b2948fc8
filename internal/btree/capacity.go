package btree

import (
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

// nodeSpace is the payload room a node page has after the common page
// header and the node header.
const nodeSpace = storage.PageSize - storage.HeaderSize - nodeHeaderSize

// DefaultLeafMax is the largest leaf entry count that fits one page:
// parallel arrays of TIDs and keys.
func DefaultLeafMax() int {
	return nodeSpace / (rid.Size + keySize)
}

// DefaultInternalMax is the largest separator-key count that fits one page:
// max keys plus max+1 child page ids.
func DefaultInternalMax() int {
	return (nodeSpace - 4) / (4 + keySize)
}

// Options tunes a tree at creation time. Zero values mean "fit the page".
// Tests shrink the maxes to single digits to exercise splits and merges
// without thousands of keys.
type Options struct {
	Name        string
	LeafMax     int
	InternalMax int
}

func (o Options) withDefaults(fs storage.FileSet) Options {
	if o.LeafMax <= 0 {
		o.LeafMax = DefaultLeafMax()
	}
	if o.InternalMax <= 0 {
		o.InternalMax = DefaultInternalMax()
	}
	if o.Name == "" {
		if lfs, ok := fs.(storage.LocalFileSet); ok {
			o.Name = lfs.Base
		}
	}
	return o
}
