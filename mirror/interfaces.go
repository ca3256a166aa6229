// Package mirror reconciles a set of local directories against their
// catalog-recorded remote counterparts and drives the remote client to make
// the remote side agree with the local filesystem.
package mirror

import "github.com/PieroV/mirror-to-onedrive/catalog"

// Catalog is the subset of *catalog.Store the mirror core depends on,
// accepted as an interface so tests can substitute an in-memory fake.
type Catalog interface {
	Children(parentID string, predicate catalog.Predicate) ([]catalog.Item, error)
	Upsert(item catalog.Item) error
	UpsertBatch(items []catalog.Item) error
	Delete(ids []string) error
	Get(id string) (*catalog.Item, error)
	Root(name string) (*catalog.Item, error)
	MarkAllNotExisting() error
	SweepNotExisting() error
	Commit() error
	Compact() error
}

// RemoteClient is the subset of *driveapi.Client the mirror core depends
// on.
type RemoteClient interface {
	Ping() error
	ListChildren(parentID string) ([]catalog.Item, error)
	GetByPath(path string) (*catalog.Item, error)
	CreateFolder(parentID, name string) (*catalog.Item, error)
	Delete(remoteID string) (bool, error)
	Upload(localPath, target, parentID string, targetIsID bool) (*catalog.Item, error)
}
