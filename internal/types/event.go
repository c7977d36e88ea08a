package types

// Level is the severity of a diagnostic event
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Field is one key/value pair attached to an event
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Event is a structured diagnostic emitted while decoding
type Event struct {
	Level   Level   `json:"-"`
	Section string  `json:"section,omitempty"`
	Message string  `json:"message"`
	Fields  []Field `json:"-"`
}

// FieldMap flattens Fields for encoders that want a map
func (e Event) FieldMap() map[string]interface{} {
	if len(e.Fields) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Observer receives diagnostic events. Implementations must not block for long;
// they run on the decoding goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// NopObserver discards every event
func NopObserver() Observer { return nopObserver{} }

// Emit sends an event to obs, tolerating a nil observer
func Emit(obs Observer, level Level, section, msg string, fields ...Field) {
	if obs == nil {
		return
	}
	obs.Observe(Event{Level: level, Section: section, Message: msg, Fields: fields})
}
