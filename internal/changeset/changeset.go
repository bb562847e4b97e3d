// Package changeset decodes the backend's hot_reload_update notification into
// the batch of type ids a reconcile run processes.
package changeset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/hotsync/internal/nodetype"
)

// EventName is the notification event carrying a ChangeSet.
const EventName = "hot_reload_update"

// ErrMalformed is returned for payloads missing changes, added or updated.
var ErrMalformed = errors.New("malformed change notification")

// ChangeSet lists the type ids touched by one backend reload.
type ChangeSet struct {
	Added   []nodetype.TypeID
	Updated []nodetype.TypeID
	// Removed is informational; instances of removed types are left alone.
	Removed []nodetype.TypeID
}

// Batch returns Added followed by Updated. Duplicates are kept.
func (c ChangeSet) Batch() []nodetype.TypeID {
	batch := make([]nodetype.TypeID, 0, len(c.Added)+len(c.Updated))
	batch = append(batch, c.Added...)
	return append(batch, c.Updated...)
}

// Empty reports whether there is nothing to reconcile.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0
}

// Notification is the full decoded payload.
type Notification struct {
	Module    string
	Action    string
	File      string
	Timestamp float64
	Changes   ChangeSet
}

type wireNotification struct {
	Module    string          `json:"module"`
	Action    string          `json:"action"`
	File      string          `json:"file"`
	Timestamp float64         `json:"timestamp"`
	Changes   json.RawMessage `json:"changes"`
}

type wireChanges struct {
	Added   json.RawMessage `json:"added"`
	Updated json.RawMessage `json:"updated"`
	Removed json.RawMessage `json:"removed"`
}

// Parse decodes a notification payload. Only the shape of changes is
// trusted; the other fields are informational.
func Parse(payload []byte) (*Notification, error) {
	var wire wireNotification
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if isAbsent(wire.Changes) {
		return nil, fmt.Errorf("%w: missing changes", ErrMalformed)
	}

	var changes wireChanges
	if err := json.Unmarshal(wire.Changes, &changes); err != nil {
		return nil, fmt.Errorf("%w: changes: %v", ErrMalformed, err)
	}

	n := &Notification{
		Module:    wire.Module,
		Action:    wire.Action,
		File:      wire.File,
		Timestamp: wire.Timestamp,
	}
	var err error
	if n.Changes.Added, err = decodeList("added", changes.Added, true); err != nil {
		return nil, err
	}
	if n.Changes.Updated, err = decodeList("updated", changes.Updated, true); err != nil {
		return nil, err
	}
	if n.Changes.Removed, err = decodeList("removed", changes.Removed, false); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeList(field string, raw json.RawMessage, required bool) ([]nodetype.TypeID, error) {
	if isAbsent(raw) {
		if required {
			return nil, fmt.Errorf("%w: missing changes.%s", ErrMalformed, field)
		}
		return nil, nil
	}
	var ids []nodetype.TypeID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: changes.%s must be a list of type ids: %v", ErrMalformed, field, err)
	}
	return ids, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
