// Package catalog holds the durable local index of known remote items and
// the store that persists it between service cycles.
package catalog

import "time"

// Item is one record of a known remote object. It is kept as a plain
// mutable aggregate - callers read and write fields directly between a
// fetch and the following Upsert.
type Item struct {
	RemoteID    string    `json:"remoteId"`
	Name        string    `json:"name"`
	LocalPath   string    `json:"localPath,omitempty"`
	Existing    bool      `json:"existing"`
	IsFolder    bool      `json:"isFolder"`
	Size        uint64    `json:"size,omitempty"`
	MTime       time.Time `json:"mtime,omitempty"`
	ContentHash string    `json:"contentHash,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
}

// IsRoot reports whether the item is a synchronization root (no parent).
func (i *Item) IsRoot() bool {
	return i.ParentID == ""
}

// Clone returns a value copy of the item, safe to mutate independently of
// whatever is stored in the catalog.
func (i Item) Clone() Item {
	return i
}
