package floe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Bookmark identifies a future resumption point for a suspended activity.
type Bookmark struct {
	ID                 string         `json:"id"`
	ActivityNodeID     string         `json:"activity_node_id"`
	ActivityInstanceID string         `json:"activity_instance_id"`
	Name               string         `json:"name"`
	Hash               string         `json:"hash"`
	Payload            map[string]any `json:"payload,omitempty"`
	CallbackMethodName string         `json:"callback_method_name,omitempty"`
	AutoBurn           bool           `json:"auto_burn"`
	AutoComplete       bool           `json:"auto_complete"`
	CreatedAt          time.Time      `json:"created_at"`
}

// BookmarkOptions configures a bookmark created by an activity.
type BookmarkOptions struct {
	Name               string
	Payload            map[string]any
	CallbackMethodName string

	// AutoBurn removes the bookmark when it is resumed. Defaults to true.
	AutoBurn *bool

	// AutoComplete completes the owning activity after a resumption that
	// creates no further work. Defaults to true.
	AutoComplete *bool
}

// Copy returns a shallow copy of the bookmark.
func (b *Bookmark) Copy() *Bookmark {
	copied := *b
	copied.Payload = copyMap(b.Payload)
	return &copied
}

// BookmarkHash computes the deterministic fingerprint of (name, payload) used
// for external bookmark lookup. The payload is serialized as canonical JSON;
// encoding/json sorts map keys, which is what makes the hash stable.
func BookmarkHash(name string, payload map[string]any) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
