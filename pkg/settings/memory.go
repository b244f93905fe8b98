package settings

import "sync"

// Memory is a Backend kept in process memory. FailWrites makes every Set
// fail, for exercising persistence error paths.
type Memory struct {
	mu         sync.Mutex
	data       map[string]string
	FailWrites error
}

var _ Backend = &Memory{}

func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(pairs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for k, v := range pairs {
		m.data[k] = v
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
