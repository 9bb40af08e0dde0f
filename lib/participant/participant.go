// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package participant

import (
	"slices"

	"github.com/google/uuid"
)

// ID identifies one participant in a session.
type ID string

// NewID returns a random participant ID.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }

// IsZero reports whether id is the empty ID.
func (id ID) IsZero() bool { return id == "" }

// ElectHost returns the host among local and remotes: the smallest ID.
// Empty IDs among remotes are ignored.
func ElectHost(local ID, remotes []ID) ID {
	host := local
	for _, remote := range remotes {
		if remote.IsZero() {
			continue
		}
		if host.IsZero() || remote < host {
			host = remote
		}
	}
	return host
}

// IsHost reports whether local wins the election against remotes.
func IsHost(local ID, remotes []ID) bool {
	return ElectHost(local, remotes) == local
}

// Set is an unordered collection of participant IDs.
type Set map[ID]struct{}

// NewSet returns a set containing ids.
func NewSet(ids ...ID) Set {
	set := make(Set, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Diff returns the members of next not present in s (added) and the
// members of s not present in next (removed), each sorted.
func (s Set) Diff(next Set) (added, removed []ID) {
	for id := range next {
		if !s.Has(id) {
			added = append(added, id)
		}
	}
	for id := range s {
		if !next.Has(id) {
			removed = append(removed, id)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}
