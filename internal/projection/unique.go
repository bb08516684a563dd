package projection

import (
	"slices"
	"strings"
)

// UniqueValues returns the distinct non-blank values of field, sorted
// lexicographically. Comparison is case-sensitive.
func UniqueValues[T any](records []T, field func(T) string) []string {
	return UniqueMulti(records, func(r T) []string { return []string{field(r)} })
}

// UniqueMulti is UniqueValues for list-valued fields such as tags.
func UniqueMulti[T any](records []T, field func(T) []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range records {
		for _, v := range field(r) {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
