// Package model holds the cached entities shared by the freshness engine, the
// garbage collector and the storage layer.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// Platform is the streaming service an identifier belongs to.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformYouTube || p == PlatformTwitch
}

// Kind is the entity an identifier points at.
type Kind string

const (
	KindVideo        Kind = "video"
	KindChannel      Kind = "channel"
	KindPlaylist     Kind = "playlist"
	KindSubscription Kind = "subscription"
	KindBroadcaster  Kind = "broadcaster"
)

// Identifier is a platform-tagged id. Two identifiers are equal only when
// platform, kind and value all match, so the type can be used as a map key.
type Identifier struct {
	Platform Platform
	Kind     Kind
	Value    string
}

// YouTubeID returns a YouTube identifier of the given kind.
func YouTubeID(kind Kind, value string) Identifier {
	return Identifier{Platform: PlatformYouTube, Kind: kind, Value: value}
}

// TwitchID returns a Twitch identifier of the given kind.
func TwitchID(kind Kind, value string) Identifier {
	return Identifier{Platform: PlatformTwitch, Kind: kind, Value: value}
}

// IsZero reports whether the identifier is unset.
func (id Identifier) IsZero() bool {
	return id.Value == ""
}

// As re-tags the identifier with another kind on the same platform. Twitch
// broadcasters and channels share a value space.
func (id Identifier) As(kind Kind) Identifier {
	id.Kind = kind
	return id
}

// Key is the storage key of the identifier within its kind's table.
func (id Identifier) Key() string {
	return string(id.Platform) + ":" + id.Value
}

func (id Identifier) String() string {
	return string(id.Platform) + ":" + string(id.Kind) + ":" + id.Value
}

// ParseKey reverses Key for the given kind.
func ParseKey(kind Kind, key string) (Identifier, error) {
	platform, value, ok := strings.Cut(key, ":")
	if !ok || value == "" {
		return Identifier{}, fmt.Errorf("%w: malformed %s key %q", ErrInvalidArgument, kind, key)
	}
	p := Platform(platform)
	if !p.Valid() {
		return Identifier{}, fmt.Errorf("%w: unknown platform %q in %s key", ErrInvalidArgument, platform, kind)
	}
	return Identifier{Platform: p, Kind: kind, Value: value}, nil
}

// IDSet is a set of identifiers.
type IDSet map[Identifier]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...Identifier) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id Identifier) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id Identifier) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s IDSet) Len() int {
	return len(s)
}

// Equal reports whether both sets hold exactly the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Difference returns the ids of s that are not in other.
func (s IDSet) Difference(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if !other.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// Sorted returns the ids ordered by their string form.
func (s IDSet) Sorted() []Identifier {
	out := make([]Identifier, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Keys returns the storage keys of the ids, sorted.
func (s IDSet) Keys() []string {
	sorted := s.Sorted()
	keys := make([]string, len(sorted))
	for i, id := range sorted {
		keys[i] = id.Key()
	}
	return keys
}
