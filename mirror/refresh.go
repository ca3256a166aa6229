package mirror

import (
	"errors"
	"fmt"
	"time"

	"github.com/PieroV/mirror-to-onedrive/driveapi"
)

// populateCommitEvery is how many upserts accumulate between commits
// during the breadth-first walk.
const populateCommitEvery = 1000

// Populate performs a full re-synchronization of the catalog from the
// remote drive: mark every row stale, resolve each configured sync root
// and walk the remote tree breadth-first from there, then sweep whatever
// was never re-observed. The mark/sweep split means an interrupted
// refresh leaves the catalog incomplete but never deletes rows it simply
// didn't get around to revisiting - the sweep only runs after the walk
// fully completes.
func Populate(store Catalog, client RemoteClient, roots []SyncRoot) error {
	if err := store.MarkAllNotExisting(); err != nil {
		return err
	}

	var toGet []string
	for _, root := range roots {
		item, err := client.GetByPath(root.RemoteName)
		if err != nil {
			return fmt.Errorf("could not resolve sync root %q: %w", root.RemoteName, err)
		}
		item.LocalPath = root.LocalPath
		if err := store.Upsert(*item); err != nil {
			return err
		}
		if item.IsFolder {
			toGet = append(toGet, item.RemoteID)
		}
	}
	if err := store.Commit(); err != nil {
		return err
	}

	counter := 0
	for len(toGet) > 0 {
		parentID := toGet[0]

		items, err := client.ListChildren(parentID)
		var throttled *driveapi.Throttled
		if errors.As(err, &throttled) {
			time.Sleep(throttled.RetryAfter)
			continue
		}
		if err != nil {
			return fmt.Errorf("could not list children of %s: %w", parentID, err)
		}
		toGet = toGet[1:]

		for i := range items {
			items[i].ParentID = parentID
			if err := store.Upsert(items[i]); err != nil {
				return err
			}
			if items[i].IsFolder {
				toGet = append(toGet, items[i].RemoteID)
			}

			counter++
			if counter%populateCommitEvery == 0 {
				if err := store.Commit(); err != nil {
					return err
				}
			}
		}
	}

	if err := store.SweepNotExisting(); err != nil {
		return err
	}
	if err := store.Commit(); err != nil {
		return err
	}
	return store.Compact()
}
