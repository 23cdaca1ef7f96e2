package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store implementation. It is safe for concurrent
// use. Each subscriber has its own delivery goroutine and FIFO queue, so a
// slow consumer never blocks writers or other subscribers, and every
// committed version is delivered in order.
type Memory struct {
	mu     sync.RWMutex
	root   map[string]any
	subs   map[int]*subscription
	nextID int
}

type subscription struct {
	path     []string
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []any
	closed   bool
	onChange func(any)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		root: make(map[string]any),
		subs: make(map[int]*subscription),
	}
}

// Get returns a deep copy of the value at path.
//
// Postcondition: The returned value shares no memory with the store.
func (m *Memory) Get(ctx context.Context, path string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := lookup(m.root, splitPath(path))
	if !ok {
		return nil, false, nil
	}
	return deepCopy(v), true, nil
}

// Set replaces the subtree at path with value.
//
// Postcondition: Subscribers overlapping path are notified with their new subtree.
func (m *Memory) Set(ctx context.Context, path string, value any) error {
	return m.Update(ctx, map[string]any{path: value})
}

// SetIfAbsent writes value at path unless the path already holds something.
//
// Postcondition: Returns true exactly when the write happened; the check and
// the write are a single critical section.
func (m *Memory) SetIfAbsent(ctx context.Context, path string, value any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	segs := splitPath(path)
	if len(segs) == 0 {
		return false, fmt.Errorf("empty path in conditional set")
	}
	if value == nil {
		return false, fmt.Errorf("nil value in conditional set at %q", path)
	}
	nv, err := normalise(value)
	if err != nil {
		return false, fmt.Errorf("normalising value at %q: %w", path, err)
	}

	batch := map[string][]string{path: segs}
	m.mu.Lock()
	if _, ok := lookup(m.root, segs); ok {
		m.mu.Unlock()
		return false, nil
	}
	write(m.root, segs, nv)
	for _, sub := range m.subs {
		if !batchTouches(batch, sub.path) {
			continue
		}
		if v, ok := lookup(m.root, sub.path); ok {
			sub.enqueue(deepCopy(v))
		} else {
			sub.enqueue(nil)
		}
	}
	m.mu.Unlock()
	return true, nil
}

// Update applies all path→value pairs atomically.
//
// Precondition: Every key must be a non-empty path; values must be
// JSON-compatible (structs are normalised through their JSON encoding).
// Postcondition: Either the whole batch is applied or nothing is; each
// overlapping subscriber receives exactly one notification for the batch.
func (m *Memory) Update(ctx context.Context, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalised := make(map[string][]string, len(patch))
	values := make(map[string]any, len(patch))
	for p, v := range patch {
		segs := splitPath(p)
		if len(segs) == 0 {
			return fmt.Errorf("empty path in update batch")
		}
		nv, err := normalise(v)
		if err != nil {
			return fmt.Errorf("normalising value at %q: %w", p, err)
		}
		normalised[p] = segs
		values[p] = nv
	}

	m.mu.Lock()
	for p, segs := range normalised {
		write(m.root, segs, values[p])
	}
	// Snapshot each affected subscriber's subtree while still holding the
	// lock so the notification order matches commit order.
	for _, sub := range m.subs {
		if !batchTouches(normalised, sub.path) {
			continue
		}
		v, ok := lookup(m.root, sub.path)
		if !ok {
			sub.enqueue(nil)
			continue
		}
		sub.enqueue(deepCopy(v))
	}
	m.mu.Unlock()
	return nil
}

// Append inserts value under a generated key and returns the key.
func (m *Memory) Append(ctx context.Context, path string, value any) (string, error) {
	key := uuid.NewString()
	if err := m.Update(ctx, map[string]any{path + "/" + key: value}); err != nil {
		return "", err
	}
	return key, nil
}

// Subscribe registers onChange for the subtree at path.
//
// Postcondition: onChange fires once with the current value (possibly nil)
// and then once per subsequent version, in commit order, until the returned
// cancel function is called.
func (m *Memory) Subscribe(path string, onChange func(value any)) (func(), error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback must not be nil")
	}
	sub := &subscription{
		path:     splitPath(path),
		onChange: onChange,
	}
	sub.cond = sync.NewCond(&sub.mu)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	if v, ok := lookup(m.root, sub.path); ok {
		sub.enqueue(deepCopy(v))
	} else {
		sub.enqueue(nil)
	}
	m.mu.Unlock()

	go sub.deliver()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			sub.close()
		})
	}
	return cancel, nil
}

func (s *subscription) enqueue(v any) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) deliver() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.onChange(v)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// batchTouches reports whether any path in the batch overlaps subPath:
// either the write is inside the subscribed subtree or an ancestor of it.
func batchTouches(batch map[string][]string, subPath []string) bool {
	for _, segs := range batch {
		n := len(segs)
		if len(subPath) < n {
			n = len(subPath)
		}
		overlap := true
		for i := 0; i < n; i++ {
			if segs[i] != subPath[i] {
				overlap = false
				break
			}
		}
		if overlap {
			return true
		}
	}
	return false
}

// lookup walks the tree along segs. An empty segs returns the root.
func lookup(root map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return root, true
	}
	var cur any = root
	for _, seg := range segs {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// write places value at segs, creating intermediate maps and replacing any
// non-map intermediates. A nil value deletes the path, pruning emptied maps.
func write(root map[string]any, segs []string, value any) {
	if value == nil {
		remove(root, segs)
		return
	}
	node := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = value
}

func remove(node map[string]any, segs []string) {
	if len(segs) == 1 {
		delete(node, segs[0])
		return
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return
	}
	remove(child, segs[1:])
	if len(child) == 0 {
		delete(node, segs[0])
	}
}

// normalise converts an arbitrary Go value into the store's JSON-compatible
// representation. nil passes through as the deletion marker.
func normalise(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
