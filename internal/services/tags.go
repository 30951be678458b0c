package services

import (
	"maps"
	"slices"
)

// sortedKeys returns map keys in a deterministic order so tag lists and
// generated documents are stable between provisioning runs.
func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
