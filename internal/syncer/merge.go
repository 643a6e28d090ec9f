package syncer

import (
	"sort"

	"github.com/alexjbarnes/journal-sync/internal/journal"
)

// MergeRemote folds remote entries into the local list with
// last-write-wins semantics per entry id:
//
//   - remote-only entries are inserted
//   - a remote entry strictly newer than its local counterpart
//     replaces it
//   - ties and local-newer keep the local copy
//   - local-only entries are never touched; a sync pass never deletes
//     local data
//
// Pure function: inputs are not mutated. The second result reports
// whether the merged list differs from local.
func MergeRemote(local, remoteEntries []journal.Entry) ([]journal.Entry, bool) {
	merged := make([]journal.Entry, len(local))
	copy(merged, local)

	index := make(map[string]int, len(merged))
	for i, e := range merged {
		index[e.ID] = i
	}

	changed := false

	for _, re := range remoteEntries {
		i, ok := index[re.ID]
		if !ok {
			index[re.ID] = len(merged)
			merged = append(merged, re)
			changed = true

			continue
		}

		if re.UpdatedAt.After(merged[i].UpdatedAt) {
			merged[i] = re
			changed = true
		}
	}

	if changed {
		sort.Slice(merged, func(i, j int) bool {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		})
	}

	return merged, changed
}
