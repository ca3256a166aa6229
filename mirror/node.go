package mirror

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PieroV/mirror-to-onedrive/catalog"
	"github.com/PieroV/mirror-to-onedrive/driveapi/quickxorhash"
	"github.com/rs/zerolog/log"
)

// mtimeWindow is the tolerance used to decide a file is "up to date"
// without hashing it.
const mtimeWindow = 2 * time.Second

// Node is one unit of reconciliation work. Exactly one of LocalPath and
// Item being unset (empty string / nil) means the other side doesn't yet
// know about this entry; both set means the entry is paired and may need
// updating; both unset is never produced by the reconciler.
type Node struct {
	LocalPath string
	Item      *catalog.Item

	remotePath string
	parent     *Node
	queries    int
}

// newRootNode builds a node for one configured sync root. Its catalog item
// is expected to already exist (populated by a prior refresh).
func newRootNode(localPath string, item *catalog.Item) *Node {
	n := &Node{LocalPath: localPath, Item: item}
	if item != nil {
		n.remotePath = item.Name
	}
	return n
}

func childNode(parent *Node, localPath string, item *catalog.Item) *Node {
	n := &Node{LocalPath: localPath, Item: item, parent: parent}
	if item != nil {
		n.remotePath = joinRemotePath(parent.remotePath, item.Name)
	}
	return n
}

func joinRemotePath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Queries reports the number of remote mutations this node has issued.
func (n *Node) Queries() int { return n.queries }

// releaseParent drops this node's reference to its parent once the node's
// own act() and child enumeration have both completed, so the live node
// set during a traversal stays proportional to tree depth rather than tree
// size.
func (n *Node) releaseParent() { n.parent = nil }

func (n *Node) parentRemoteID() string {
	if n.parent == nil || n.parent.Item == nil {
		return ""
	}
	return n.parent.Item.RemoteID
}

func (n *Node) parentRemotePath() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.remotePath
}

// act dispatches the node to update, create, or delete depending on which
// of LocalPath/Item are present.
func (n *Node) act(store Catalog, client RemoteClient, checkHash bool) error {
	switch {
	case n.LocalPath != "" && n.Item != nil:
		return n.update(store, client, checkHash)
	case n.LocalPath != "":
		return n.create(store, client)
	case n.Item != nil:
		return n.delete(store, client)
	default:
		log.Error().Msg("Reconciler produced a node with neither a local path nor a catalog item.")
		return nil
	}
}

func (n *Node) update(store Catalog, client RemoteClient, checkHash bool) error {
	info, err := os.Stat(n.LocalPath)
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", n.LocalPath, err)
	}

	if info.IsDir() != n.Item.IsFolder {
		log.Warn().Str("path", n.LocalPath).Msg("Local kind no longer matches the catalog item; recreating.")
		if err := n.delete(store, client); err != nil {
			return err
		}
		return n.create(store, client)
	}

	if n.Item.LocalPath != n.LocalPath {
		n.Item.LocalPath = n.LocalPath
		if err := store.Upsert(*n.Item); err != nil {
			return err
		}
	}

	if info.IsDir() {
		return nil
	}

	upToDate := uint64(info.Size()) == n.Item.Size &&
		absDuration(info.ModTime().Sub(n.Item.MTime)) < mtimeWindow

	if checkHash && upToDate {
		hash, err := hashFile(n.LocalPath)
		if err != nil {
			return fmt.Errorf("could not hash %s: %w", n.LocalPath, err)
		}
		if hash != n.Item.ContentHash {
			upToDate = false
			log.Info().Str("path", n.LocalPath).Msg("Size and mtime matched but content hash did not.")
		}
	}
	if upToDate {
		return nil
	}
	if info.Size() == 0 {
		log.Warn().Str("path", n.LocalPath).Msg("Skipping update of an empty file.")
		return nil
	}

	newItem, err := client.Upload(n.LocalPath, n.Item.RemoteID, n.parentRemoteID(), true)
	if err != nil {
		return fmt.Errorf("could not upload %s: %w", n.LocalPath, err)
	}
	if newItem == nil {
		return fmt.Errorf("upload of %s produced no item", n.LocalPath)
	}
	newItem.LocalPath = n.LocalPath
	n.Item = newItem
	if err := store.Upsert(*n.Item); err != nil {
		return err
	}
	n.queries++
	return nil
}

func (n *Node) create(store Catalog, client RemoteClient) error {
	if n.Item != nil {
		return fmt.Errorf("create called on node that already has an item (%s)", n.LocalPath)
	}
	info, err := os.Stat(n.LocalPath)
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", n.LocalPath, err)
	}

	name := filepath.Base(n.LocalPath)
	var item *catalog.Item
	switch {
	case info.IsDir():
		item, err = client.CreateFolder(n.parentRemoteID(), name)
	case info.Mode().IsRegular():
		target := joinRemotePath(n.parentRemotePath(), name)
		item, err = client.Upload(n.LocalPath, target, n.parentRemoteID(), false)
	default:
		return fmt.Errorf("%s is neither a regular file nor a directory", n.LocalPath)
	}
	if err != nil {
		return fmt.Errorf("could not create %s remotely: %w", n.LocalPath, err)
	}
	if item == nil {
		// Upload returns (nil, nil) for zero-length files; nothing to record.
		return nil
	}

	item.LocalPath = n.LocalPath
	if err := store.Upsert(*item); err != nil {
		return err
	}
	n.queries++
	n.Item = item
	n.remotePath = joinRemotePath(n.parentRemotePath(), item.Name)
	return nil
}

func (n *Node) delete(store Catalog, client RemoteClient) error {
	ok, err := client.Delete(n.Item.RemoteID)
	if err != nil {
		return fmt.Errorf("could not delete %s (%s): %w", n.Item.Name, n.Item.RemoteID, err)
	}
	if !ok {
		return fmt.Errorf("could not delete %s (%s)", n.Item.Name, n.Item.RemoteID)
	}
	if err := store.Delete([]string{n.Item.RemoteID}); err != nil {
		return err
	}
	n.queries++
	n.Item = nil
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := quickxorhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
