package relay

import (
	"sync"
)

// Recorder observes a set of MockLines and checks the open/close interlock
// after every write.
type Recorder struct {
	mu         sync.Mutex
	levels     map[string]int
	writes     []Write
	violations int
}

// Write is one recorded SetValue call.
type Write struct {
	Line  string
	Value int
}

func NewRecorder() *Recorder {
	return &Recorder{levels: map[string]int{}}
}

// MockLine is an in-memory Line.
type MockLine struct {
	name string
	rec  *Recorder
}

// Line returns a line reporting to r under name.
func (r *Recorder) Line(name string) *MockLine {
	return &MockLine{name: name, rec: r}
}

// Lines returns mock open, close and stop lines.
func (r *Recorder) Lines() Lines {
	return Lines{
		Open:  r.Line(Open.String()),
		Close: r.Line(Close.String()),
		Stop:  r.Line(Stop.String()),
	}
}

func (l *MockLine) SetValue(v int) error {
	r := l.rec
	r.mu.Lock()
	defer r.mu.Unlock()

	r.levels[l.name] = v
	r.writes = append(r.writes, Write{Line: l.name, Value: v})
	if r.levels[Open.String()] != 0 && r.levels[Close.String()] != 0 {
		r.violations++
	}
	return nil
}

// Level returns the last value written to the named line.
func (r *Recorder) Level(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[name]
}

// Writes returns a copy of every write so far.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// Pulses counts rising edges on the named line.
func (r *Recorder) Pulses(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.writes {
		if w.Line == name && w.Value == 1 {
			n++
		}
	}
	return n
}

// Violations counts writes after which open and close were both asserted.
func (r *Recorder) Violations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations
}
