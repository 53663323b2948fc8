package heap

import "github.com/njudb/njudb/internal/rid"

// TID (Tuple ID) is a row's identity inside a heap file: a (page id, slot
// id) pair. It is a direct alias of rid.RID so every index and table in
// the tree shares one encode/decode/hash/invalid-sentinel implementation
// instead of each layer rolling its own row-identifier type.
type TID = rid.RID
