package runtimeinv

import (
	"path/filepath"
	"strings"
)

// IsGlobalInfra reports whether workingDir sits inside the user state root,
// the §4.D classification that's filtered out of project rollups unless
// the caller opts in to "include all."
func IsGlobalInfra(workingDir, stateRoot string) bool {
	if workingDir == "" || stateRoot == "" {
		return false
	}
	root := strings.TrimSuffix(stateRoot, string(filepath.Separator))
	return workingDir == root || strings.HasPrefix(workingDir, root+string(filepath.Separator))
}

// FilterGlobalInfra drops project groups classified as global infra from
// inv unless includeAll is set.
func FilterGlobalInfra(inv *Inventory, stateRoot string, includeAll bool) *Inventory {
	if includeAll {
		return inv
	}

	filtered := &Inventory{Projects: map[string]*ProjectGroup{}, Unavailable: inv.Unavailable}
	for label, pg := range inv.Projects {
		if IsGlobalInfra(pg.WorkingDir, stateRoot) {
			continue
		}
		filtered.Projects[label] = pg
	}
	return filtered
}
