package mirror

import (
	"os"
	"path/filepath"

	"github.com/PieroV/mirror-to-onedrive/catalog"
)

// children computes a directory node's work list: children already paired
// by local path, renamed-and-repaired children (matched by case-folded
// name or, failing that, content hash), catalog orphans left over (to be
// deleted), and new local entries (to be created).
func children(store Catalog, node *Node) ([]*Node, error) {
	if node.Item == nil || node.LocalPath == "" {
		return nil, nil
	}
	info, err := os.Stat(node.LocalPath)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	catalogChildren, err := store.Children(node.Item.RemoteID, nil)
	if err != nil {
		return nil, err
	}

	paired := make(map[string]*Node)
	orphaned := make(map[string]catalog.Item)

	for _, item := range catalogChildren {
		item := item
		if item.LocalPath != "" {
			if _, err := os.Stat(item.LocalPath); err == nil {
				paired[filepath.Base(item.LocalPath)] = childNode(node, item.LocalPath, &item)
				continue
			}
			item.LocalPath = ""
		}
		orphaned[foldName(item.Name)] = item
	}

	entries, err := os.ReadDir(node.LocalPath)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]string)
	for _, entry := range entries {
		if _, ok := paired[entry.Name()]; ok {
			continue
		}
		key := foldName(entry.Name())
		buckets[key] = append(buckets[key], filepath.Join(node.LocalPath, entry.Name()))
	}

	var newChildren []string
	conflicts := make(map[string][]string)
	for key, candidates := range buckets {
		orphan, hasOrphan := orphaned[key]
		switch {
		case len(candidates) == 1 && hasOrphan:
			paired[filepath.Base(candidates[0])] = childNode(node, candidates[0], &orphan)
			delete(orphaned, key)
		case !hasOrphan:
			newChildren = append(newChildren, candidates...)
		default:
			conflicts[key] = candidates
		}
	}

	for key, candidates := range conflicts {
		orphan := orphaned[key]
		matched := -1
		for i, candidate := range candidates {
			hash, err := hashFile(candidate)
			if err != nil {
				continue
			}
			if hash == orphan.ContentHash {
				matched = i
				break
			}
		}
		if matched >= 0 {
			paired[filepath.Base(candidates[matched])] = childNode(node, candidates[matched], &orphan)
			delete(orphaned, key)
			candidates = append(candidates[:matched:matched], candidates[matched+1:]...)
		}
		newChildren = append(newChildren, candidates...)
	}

	result := make([]*Node, 0, len(paired)+len(orphaned)+len(newChildren))
	for _, n := range paired {
		result = append(result, n)
	}
	for _, item := range orphaned {
		item := item
		result = append(result, childNode(node, "", &item))
	}
	for _, path := range newChildren {
		result = append(result, childNode(node, path, nil))
	}
	return result, nil
}

// foldName case-folds a name using ASCII-only lowercasing. The remote
// store's own case-insensitivity is likewise ASCII, not locale-aware, so
// multi-byte characters are left untouched here.
func foldName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
