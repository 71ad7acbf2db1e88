// Package metric exposes processing counters of demix components with
// expvar. Every component type is published as a single expvar map named
// "demix.<package>.<Type>".
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/demix/signal"
)

const prefix = "demix."

// Counter names.
const (
	// BlockCounter measures number of processed blocks.
	BlockCounter = "Blocks"
	// SampleCounter measures number of samples.
	SampleCounter = "Samples"
	// DroppedCounter measures number of blocks passed through because
	// the engine was busy.
	DroppedCounter = "Dropped"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of signal.
	DurationCounter = "Duration"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
)

var registry = struct {
	sync.Mutex
	m map[string]*counters
}{
	m: make(map[string]*counters),
}

// counters of a single component type. Fields are referenced directly on
// measure, the map only publishes them.
type counters struct {
	vars       *expvar.Map
	components expvar.Int
	blocks     expvar.Int
	samples    expvar.Int
	dropped    expvar.Int
	latency    duration
	duration   duration
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when block is processed. Dropped is true
// if block was passed through. It doesn't allocate.
type MeasureFunc func(blockSize int64, dropped bool)

// Meter registers component and returns a closure to start measuring it.
// Components of the same type share counters.
func Meter(component interface{}, sampleRate int) ResetFunc {
	c := lookup(name(component))
	c.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			blockSize     int64
			blockDuration time.Duration
		)
		return func(s int64, dropped bool) {
			c.latency.set(time.Since(calledAt))
			c.blocks.Add(1)
			c.samples.Add(s)
			if dropped {
				c.dropped.Add(1)
			}
			if blockSize != s {
				blockSize = s
				blockDuration = signal.DurationOf(sampleRate, s)
			}
			c.duration.add(blockDuration)
			calledAt = time.Now()
		}
	}
}

// Snapshot holds counter values of a single component type.
type Snapshot map[string]string

// GetAll returns counters of all metered component types keyed by type
// name, e.g. "portaudio.Stream".
func GetAll() map[string]Snapshot {
	registry.Lock()
	defer registry.Unlock()
	all := make(map[string]Snapshot, len(registry.m))
	for component, c := range registry.m {
		s := make(Snapshot)
		c.vars.Do(func(kv expvar.KeyValue) {
			s[kv.Key] = kv.Value.String()
		})
		all[component] = s
	}
	return all
}

func lookup(component string) *counters {
	registry.Lock()
	defer registry.Unlock()
	if c, ok := registry.m[component]; ok {
		return c
	}
	c := &counters{vars: expvar.NewMap(prefix + component)}
	c.vars.Set(ComponentCounter, &c.components)
	c.vars.Set(BlockCounter, &c.blocks)
	c.vars.Set(SampleCounter, &c.samples)
	c.vars.Set(DroppedCounter, &c.dropped)
	c.vars.Set(LatencyCounter, &c.latency)
	c.vars.Set(DurationCounter, &c.duration)
	registry.m[component] = c
	return c
}

// name returns package-qualified type name of the component.
func name(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration is a time.Duration expvar, formatted as a JSON string.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(v.d.Load()))
}

func (v *duration) add(delta time.Duration) {
	v.d.Add(int64(delta))
}

func (v *duration) set(value time.Duration) {
	v.d.Store(int64(value))
}
