// Package changefeed defines the row-change events emitted by the store.
// The store is the only source of truth; every consumer reacts to these
// events and re-reads what it needs.
package changefeed

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	// OpResync is emitted after the notification connection was lost and
	// re-established. Consumers must re-read because events may be missing.
	OpResync Op = "RESYNC"
)

const (
	TableOrders    = "pedidos"
	TableCouriers  = "repartidores"
	TablePositions = "ubicacion_real"
)

// KeyColumns are the only columns an event row carries. Consumers re-read
// anything else, and a NOTIFY payload stays far below its 8000 byte cap
// however long an order's free text gets.
var KeyColumns = []string{"id", "restaurante_id", "repartidor_id", "usuario_id"}

// MaxPayload is the Postgres limit on a NOTIFY payload.
const MaxPayload = 8000

// Event is one row change. Old is empty for inserts, New for deletes.
type Event struct {
	Op    Op              `json:"type"`
	Table string          `json:"table"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
	At    int64           `json:"at"`
}

// Source delivers events until ctx is done, then closes the channel.
type Source interface {
	Listen(ctx context.Context) (<-chan Event, error)
}

func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode change event")
	}
	switch ev.Op {
	case OpInsert, OpUpdate, OpDelete, OpResync:
	default:
		return Event{}, errors.Errorf("unknown change op %q", ev.Op)
	}
	return ev, nil
}

// Keys reduces a full JSON row to its KeyColumns.
func Keys(row json.RawMessage) json.RawMessage {
	if len(row) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(row, &m); err != nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(KeyColumns))
	for _, c := range KeyColumns {
		if v, ok := m[c]; ok {
			out[c] = v
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return b
}

func Resync(at int64) Event {
	return Event{Op: OpResync, At: at}
}

// Field returns the string value of column in the new row, falling back to
// the old row. Missing, null and non-string values yield "".
func (e Event) Field(column string) string {
	if v := field(e.New, column); v != "" {
		return v
	}
	return field(e.Old, column)
}

// Fields returns the distinct non-empty values of column across old and new
// rows, so a reassignment reaches both the previous and the current owner.
func (e Event) Fields(column string) []string {
	var out []string
	for _, row := range []json.RawMessage{e.Old, e.New} {
		v := field(row, column)
		if v == "" {
			continue
		}
		if len(out) == 1 && out[0] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

func field(row json.RawMessage, column string) string {
	if len(row) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(row, &m); err != nil {
		return ""
	}
	raw, ok := m[column]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
