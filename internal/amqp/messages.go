package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"lifesync/internal/store"
)

// ChangeEvent announces one successful write. It carries no record data:
// consumers read the current state from the store. PrevDate is the record's
// date before an update or delete, so a consumer can refresh the period a
// record moved out of.
type ChangeEvent struct {
	UserID     string    `json:"userId"`
	Collection string    `json:"collection"`
	Path       string    `json:"path"`
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	PrevDate   string    `json:"prevDate,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeEvent(path, id string, op store.OpKind) *ChangeEvent {
	uid, _ := store.OwnerOf(path)
	return &ChangeEvent{
		UserID:     uid,
		Collection: store.CollectionOf(path),
		Path:       path,
		ID:         id,
		Op:         op.String(),
		Timestamp:  time.Now(),
	}
}

// EventOf builds the event for a committed change.
func EventOf(c store.Change) *ChangeEvent {
	ev := NewChangeEvent(c.Path, c.ID, c.Op)
	ev.PrevDate = c.PrevDate
	return ev
}

func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Path == "" {
		return nil, fmt.Errorf("change event without path")
	}
	return &e, nil
}
