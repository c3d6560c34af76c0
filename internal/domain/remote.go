package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// WriteMode selects how a remote write treats the existing document.
type WriteMode int

const (
	// MergeFields overlays the given top-level fields onto the stored document.
	MergeFields WriteMode = iota
	// ReplaceCollection replaces the whole stored value.
	ReplaceCollection
)

func (m WriteMode) String() string {
	if m == MergeFields {
		return "merge_fields"
	}
	return "replace_collection"
}

type RemoteDoc struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Disposable releases a live subscription.
type Disposable interface {
	Close() error
}

type DisposableFunc func() error

func (f DisposableFunc) Close() error { return f() }

// ChangeHandler receives the complete current contents of a subscribed path
// on every change, or the error that interrupted the feed.
type ChangeHandler func(docs []RemoteDoc, err error)

type DocumentStore interface {
	Read(ctx context.Context, path string) (RemoteDoc, error)
	Write(ctx context.Context, path string, value any, mode WriteMode) error
	// Delete of a missing document is not an error.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, path string) ([]RemoteDoc, error)
	Append(ctx context.Context, path string, value any) (string, error)
}

type LiveFeed interface {
	Subscribe(path string, onChange ChangeHandler) (Disposable, error)
}

// RemoteStore is the authoritative document store.
type RemoteStore interface {
	DocumentStore
	LiveFeed
}

type Authenticator interface {
	OnIdentityChange(cb func(identity string)) Disposable
	SignOut(ctx context.Context) error
}

func UserPath(identity string) string {
	return "users/" + identity
}

func CollectionPath(identity string, c Collection) string {
	return UserPath(identity) + "/" + string(c)
}

func DocPath(identity string, c Collection, id string) string {
	return CollectionPath(identity, c) + "/" + id
}

// IsDocumentPath reports whether path addresses a single document. Document
// paths have an even number of segments, collection paths an odd number.
func IsDocumentPath(path string) bool {
	path = strings.Trim(path, "/")
	if path == "" {
		return false
	}
	return len(strings.Split(path, "/"))%2 == 0
}

// SplitPath returns the parent collection path and the final segment.
func SplitPath(path string) (parent, id string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
