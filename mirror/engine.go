package mirror

import "github.com/rs/zerolog/log"

// checkpointQueries is the accumulated-mutation threshold past which the
// engine commits the catalog and resets its counter.
const checkpointQueries = 1000

// SyncRoot names one configured mapping between a remote path and a local
// directory.
type SyncRoot struct {
	RemoteName string
	LocalPath  string
}

// Mirror performs one depth-first pass over every configured sync root,
// reconciling catalog state against both the local filesystem and the
// remote drive. Work is kept on an explicit stack (not recursion) so a
// node can drop its parent reference once its own act() and child
// enumeration are both done, keeping the live node set proportional to
// tree depth rather than tree size.
func Mirror(store Catalog, client RemoteClient, roots []SyncRoot, checkHash bool) error {
	var stack []*Node
	for _, root := range roots {
		item, err := store.Root(root.RemoteName)
		if err != nil {
			return err
		}
		if item == nil {
			log.Error().Str("root", root.RemoteName).Msg("Configured sync root not found in catalog; run a refresh first.")
			continue
		}
		stack = append(stack, newRootNode(root.LocalPath, item))
	}

	unsaved := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := n.act(store, client, checkHash); err != nil {
			log.Error().Err(err).Str("path", n.LocalPath).Msg("Failed to reconcile node.")
		}
		unsaved += n.queries

		kids, err := children(store, n)
		if err != nil {
			log.Error().Err(err).Str("path", n.LocalPath).Msg("Failed to list children.")
		} else {
			stack = append(stack, kids...)
		}
		n.releaseParent()

		if unsaved > checkpointQueries {
			if err := store.Commit(); err != nil {
				return err
			}
			log.Debug().Int("unsaved", unsaved).Msg("Checkpoint commit.")
			unsaved = 0
		}
	}
	return nil
}
