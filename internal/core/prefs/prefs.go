// Package prefs holds client-local preferences. Values are namespaced per
// user and never synced to the server.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Entry is one stored preference with metadata.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines persistence operations for preference data.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// FavoritesKey is the key holding a user's pinned-to-top conversations.
func FavoritesKey(userID string) string {
	return "favorites:" + userID
}

// Favorites reads and writes the per-user favorite conversation list.
type Favorites struct {
	store Store
}

// NewFavorites wraps store.
func NewFavorites(store Store) *Favorites {
	return &Favorites{store: store}
}

// Favorites returns the favorite conversation IDs of userID in the order
// they were marked.
func (f *Favorites) Favorites(ctx context.Context, userID string) ([]string, error) {
	entry, err := f.store.Get(ctx, FavoritesKey(userID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(entry.Value), &ids); err != nil {
		return nil, fmt.Errorf("decode favorites for %s: %w", userID, err)
	}
	return ids, nil
}

// SetFavorites replaces the favorite list of userID. An empty list removes
// the entry.
func (f *Favorites) SetFavorites(ctx context.Context, userID string, ids []string) error {
	key := FavoritesKey(userID)
	if len(ids) == 0 {
		err := f.store.Delete(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		return err
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return f.store.Set(ctx, key, string(data))
}
