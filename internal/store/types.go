package store

// Object is a stored object document. The identifier is held under "_id" and
// duplicated as the store key.
type Object map[string]any

// State is a stored state document.
type State map[string]any

// Well-known document keys.
const (
	KeyID     = "_id"
	KeyType   = "type"
	KeyCommon = "common"
	KeyNative = "native"

	KeyVal  = "val"
	KeyAck  = "ack"
	KeyTs   = "ts"
	KeyLc   = "lc"
	KeyFrom = "from"
	KeyQ    = "q"
)

// ID returns the object identifier or "".
func (o Object) ID() string {
	s, _ := o[KeyID].(string)
	return s
}

// Type returns the object type or "".
func (o Object) Type() string {
	s, _ := o[KeyType].(string)
	return s
}

// Common returns the common section, or nil.
func (o Object) Common() map[string]any {
	m, _ := o[KeyCommon].(map[string]any)
	return m
}

// Native returns the native section, or nil.
func (o Object) Native() map[string]any {
	m, _ := o[KeyNative].(map[string]any)
	return m
}

// Val returns the state value.
func (s State) Val() any {
	return s[KeyVal]
}

// Ack reports whether the state was acknowledged.
func (s State) Ack() bool {
	b, _ := s[KeyAck].(bool)
	return b
}

// From returns the origin of the state.
func (s State) From() string {
	str, _ := s[KeyFrom].(string)
	return str
}

// Ts returns the timestamp in milliseconds.
func (s State) Ts() int64 {
	return asInt64(s[KeyTs])
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ObjectListener is notified after an object is published (obj != nil) or
// deleted (obj == nil).
type ObjectListener func(id string, obj Object)

// StateListener is notified after a state is published (state != nil) or
// deleted (state == nil).
type StateListener func(id string, state State)
