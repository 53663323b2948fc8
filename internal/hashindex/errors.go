package hashindex

import "fmt"

// ErrIndexClosed is returned by any operation on an index after Close.
var ErrIndexClosed = fmt.Errorf("hashindex: index is closed")
