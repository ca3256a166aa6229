package mirror

import (
	"fmt"
	"sync"

	"github.com/PieroV/mirror-to-onedrive/catalog"
)

// fakeStore is an in-memory Catalog used by mirror package tests.
type fakeStore struct {
	mu         sync.Mutex
	items      map[string]catalog.Item
	commits    int
	compacts   int
	nextAutoID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]catalog.Item)}
}

func (s *fakeStore) Children(parentID string, predicate catalog.Predicate) ([]catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []catalog.Item
	for _, item := range s.items {
		if item.ParentID != parentID {
			continue
		}
		if predicate != nil && !predicate(item) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *fakeStore) Upsert(item catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.RemoteID == "" {
		return fmt.Errorf("fakeStore: empty remote id")
	}
	s.items[item.RemoteID] = item
	return nil
}

func (s *fakeStore) UpsertBatch(items []catalog.Item) error {
	for _, item := range items {
		if err := s.Upsert(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func (s *fakeStore) Get(id string) (*catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *fakeStore) Root(name string) (*catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ParentID == "" && item.Name == name {
			return &item, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MarkAllNotExisting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		item.Existing = false
		s.items[id] = item
	}
	return nil
}

func (s *fakeStore) SweepNotExisting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if !item.Existing {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *fakeStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

func (s *fakeStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compacts++
	return nil
}

// fakeClient is an in-memory RemoteClient used by mirror package tests.
type fakeClient struct {
	mu sync.Mutex

	childrenByParent map[string][]catalog.Item
	itemsByPath      map[string]*catalog.Item

	createdFolders []string
	uploaded       []string
	deleted        []string

	nextID int

	uploadResult func(localPath, target, parentID string, targetIsID bool) (*catalog.Item, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		childrenByParent: make(map[string][]catalog.Item),
		itemsByPath:      make(map[string]*catalog.Item),
	}
}

func (c *fakeClient) Ping() error {
	return nil
}

func (c *fakeClient) ListChildren(parentID string) ([]catalog.Item, error) {
	return c.childrenByParent[parentID], nil
}

func (c *fakeClient) GetByPath(path string) (*catalog.Item, error) {
	item, ok := c.itemsByPath[path]
	if !ok {
		return nil, fmt.Errorf("fakeClient: no item at path %q", path)
	}
	return item, nil
}

func (c *fakeClient) CreateFolder(parentID, name string) (*catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdFolders = append(c.createdFolders, name)
	c.nextID++
	return &catalog.Item{
		RemoteID: fmt.Sprintf("folder-%d", c.nextID),
		Name:     name,
		IsFolder: true,
		Existing: true,
		ParentID: parentID,
	}, nil
}

func (c *fakeClient) Delete(remoteID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, remoteID)
	return true, nil
}

func (c *fakeClient) Upload(localPath, target, parentID string, targetIsID bool) (*catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploaded = append(c.uploaded, localPath)
	if c.uploadResult != nil {
		return c.uploadResult(localPath, target, parentID, targetIsID)
	}
	c.nextID++
	id := target
	if !targetIsID {
		id = fmt.Sprintf("file-%d", c.nextID)
	}
	return &catalog.Item{
		RemoteID: id,
		Name:     target,
		Existing: true,
		ParentID: parentID,
	}, nil
}
