package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// RunID adds a run ID field.
func RunID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("run_id", id)
	}
}

// Agent adds the agent name.
func Agent(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent", name)
	}
}

// Iteration adds the loop iteration.
func Iteration(i int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("iteration", i)
	}
}

// Phase adds the lifecycle phase.
func Phase(p string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("phase", p)
	}
}

// Threshold adds an acceptance threshold value.
func Threshold(name string, v float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64(name, v)
	}
}

// MinTime adds the current best time.
func MinTime(v float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64("min_time", v)
	}
}

// Exploit adds whether a pick came from the exploit rule.
func Exploit(found bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("found_by_exploit", found)
	}
}

// Label adds a feasibility label.
func Label(y int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("label", y)
	}
}

// Count adds an integer count with a custom key.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Bool adds a boolean field with custom key.
func Bool(key string, v bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, v)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
