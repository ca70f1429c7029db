package logger

import (
	"sort"
	"sync"
	"sync/atomic"
)

type levelCount struct {
	warns  int64
	errors int64
}

var counts sync.Map // component -> *levelCount

func counter(component string) *levelCount {
	v, _ := counts.LoadOrStore(component, &levelCount{})
	return v.(*levelCount)
}

func recordWarn(component string) {
	atomic.AddInt64(&counter(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&counter(component).errors, 1)
}

// ComponentCount is the number of warnings and errors a component has logged.
type ComponentCount struct {
	Component string
	Warns     int64
	Errors    int64
}

// Counts returns per-component warning/error totals sorted by component.
func Counts() []ComponentCount {
	var out []ComponentCount
	counts.Range(func(k, v interface{}) bool {
		c := v.(*levelCount)
		out = append(out, ComponentCount{
			Component: k.(string),
			Warns:     atomic.LoadInt64(&c.warns),
			Errors:    atomic.LoadInt64(&c.errors),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}
