package cache

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Tag labels a cached result so mutations can find what they make stale.
// It renders as "Type:ID", e.g. "Books:LIST" or "Books:64f1c2".
type Tag struct {
	Type string
	ID   string
}

func (t Tag) String() string { return t.Type + ":" + t.ID }

// ParseTag is the inverse of Tag.String.
func ParseTag(s string) (Tag, bool) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || typ == "" || id == "" {
		return Tag{}, false
	}
	return Tag{Type: typ, ID: id}, true
}

// Key identifies one cached query: the endpoint plus its serialized arguments.
type Key struct {
	Endpoint string
	Args     string
}

// NewKey serializes args to JSON so equal arguments map to the same entry.
func NewKey(endpoint string, args any) Key {
	if args == nil {
		return Key{Endpoint: endpoint}
	}
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(args)
	if err != nil || string(raw) == "null" {
		return Key{Endpoint: endpoint}
	}
	return Key{Endpoint: endpoint, Args: string(raw)}
}

func (k Key) String() string {
	if k.Args == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Args + ")"
}

func tagStrings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

func parseTags(raw []string) []Tag {
	out := make([]Tag, 0, len(raw))
	for _, s := range raw {
		if t, ok := ParseTag(s); ok {
			out = append(out, t)
		}
	}
	return out
}
