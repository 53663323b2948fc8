package btree

import "errors"

var (
	ErrTreeClosed  = errors.New("btree: tree is closed")
	ErrBadNodePage = errors.New("btree: page is not a node of this tree")
)
