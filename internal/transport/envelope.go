package transport

import "encoding/json"

// Message types recognized by the native writer host.
const (
	TypePing         = "PING"
	TypeSessionStart = "SESSION_START"
	TypeSessionEnd   = "SESSION_END"
	TypeLogEvent     = "LOG_EVENT"
	TypeLogBatch     = "LOG_BATCH"
	TypeGetStatus    = "GET_STATUS"
	TypeSetConfig    = "SET_CONFIG"
	TypeFlush        = "FLUSH"
)

// Envelope is one framed message: a type, an optional correlation id echoed
// by responses, and arbitrary payload fields flattened alongside them.
type Envelope struct {
	Type string
	ID   string
	Body map[string]any
}

// MarshalJSON flattens Body next to "type" and "_id".
func (e Envelope) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Body)+2)
	for k, v := range e.Body {
		obj[k] = v
	}
	if e.Type != "" {
		obj["type"] = e.Type
	}
	if e.ID != "" {
		obj["_id"] = e.ID
	}
	return json.Marshal(obj)
}

// UnmarshalJSON extracts "type" and "_id"; everything else lands in Body.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	obj := map[string]any{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if t, ok := obj["type"].(string); ok {
		e.Type = t
		delete(obj, "type")
	}
	if id, ok := obj["_id"].(string); ok {
		e.ID = id
		delete(obj, "_id")
	}
	e.Body = obj
	return nil
}

// Bool returns the named Body field as a bool (false when absent or not a bool).
func (e Envelope) Bool(key string) bool {
	v, ok := e.Body[key].(bool)
	return ok && v
}

// Str returns the named Body field as a string ("" when absent).
func (e Envelope) Str(key string) string {
	v, _ := e.Body[key].(string)
	return v
}

// Success reports the host's {"success": true} acknowledgment.
func (e Envelope) Success() bool { return e.Bool("success") }

// Reply builds a response envelope echoing the request's correlation id.
func Reply(req Envelope, body map[string]any) Envelope {
	return Envelope{ID: req.ID, Body: body}
}
