package store

// Keyspace for the telemetry buffer.
//
// Layout (byte-wise, lexicographically sortable):
// - tm/ev/{eventId}  buffered event record (ids are time-ordered, so key
//   order is insertion order)
// - tm/meta          accounting record: count(8 BE) | size(8 BE)
// - tm/cfg           persisted runtime config (JSON)

var (
	keyEventPrefix = []byte("tm/ev/")
	keyMeta        = []byte("tm/meta")
	keyConfig      = []byte("tm/cfg")
)

// keyEvent builds the record key for an event id.
func keyEvent(id string) []byte {
	k := make([]byte, 0, len(keyEventPrefix)+len(id))
	k = append(k, keyEventPrefix...)
	k = append(k, id...)
	return k
}

// eventRange returns the [start, end) bounds covering every event key.
func eventRange() (start, end []byte) {
	start = keyEventPrefix
	end = append(append([]byte(nil), keyEventPrefix[:len(keyEventPrefix)-1]...), '/'+1)
	return start, end
}
