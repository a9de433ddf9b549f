package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

// Domain fields

func NodeID(id uint64) Field {
	return Uint64("node_id", id)
}

func Node(name string) Field {
	return String("node", name)
}

func Item(item string) Field {
	return String("item", item)
}

func GroupID(id int) Field {
	return Int("group_id", id)
}

func Rate(r float64) Field {
	return Float64("rate", r)
}

func Flow(f float64) Field {
	return Float64("flow", f)
}

func Residual(r float64) Field {
	return Float64("residual", r)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
