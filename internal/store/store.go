// Package store implements the in-memory object/state database the mock host
// surface is backed by.
//
// The store only ever deals in fully qualified identifiers; prefixing bare
// ids with an adapter namespace is the caller's job. Documents are copied on
// the way in and on the way out, so nothing outside the store can alias its
// tables.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/adapter-harness/internal/pattern"
)

// ErrInvariantViolation is returned when a document breaks a store invariant.
var ErrInvariantViolation = errors.New("store invariant violation")

// DefaultFrom is the origin stamped on states published without one.
const DefaultFrom = "system.adapter.test.0"

// Frozen templates. Never mutated; publish merges over deep copies.
var (
	objectTemplate = Object{
		KeyCommon: map[string]any{},
		KeyNative: map[string]any{},
	}
	stateTemplate = State{
		KeyAck:  false,
		KeyQ:    0,
		KeyFrom: DefaultFrom,
	}
)

// Store owns the objects and states tables.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
	states  map[string]State

	lmu             sync.RWMutex
	objectListeners []ObjectListener
	stateListeners  []StateListener

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp ts/lc.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects: make(map[string]Object),
		states:  make(map[string]State),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishObject validates obj, merges it over the object template and stores
// it under its id.
func (s *Store) PublishObject(obj Object) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", ErrInvariantViolation)
	}
	id := obj.ID()
	if id == "" {
		return fmt.Errorf("%w: object has no %s", ErrInvariantViolation, KeyID)
	}
	if obj.Type() == "" {
		return fmt.Errorf("%w: object %q has no %s", ErrInvariantViolation, id, KeyType)
	}

	stored := Object(mergeDocs(objectTemplate, obj))

	s.mu.Lock()
	s.objects[id] = stored
	s.mu.Unlock()

	s.notifyObject(id, stored)
	return nil
}

// PublishState merges state over the state template and stores it. A nil
// state deletes the entry.
func (s *Store) PublishState(id string, state State) {
	if state == nil {
		s.DeleteState(id)
		return
	}

	stored := State(mergeDocs(stateTemplate, state))
	ts := s.now().UnixMilli()
	if _, ok := stored[KeyTs]; !ok {
		stored[KeyTs] = ts
	}
	if _, ok := stored[KeyLc]; !ok {
		stored[KeyLc] = ts
	}

	s.mu.Lock()
	s.states[id] = stored
	s.mu.Unlock()

	s.notifyState(id, stored)
}

// GetObject returns a copy of the object stored under id.
func (s *Store) GetObject(id string) (Object, bool) {
	s.mu.RLock()
	obj, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return Object(cloneMap(obj)), true
}

// GetState returns a copy of the state stored under id.
func (s *Store) GetState(id string) (State, bool) {
	s.mu.RLock()
	state, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return State(cloneMap(state)), true
}

// HasObject reports whether an object exists under id.
func (s *Store) HasObject(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

// HasObjectIn is HasObject(namespace + "." + id).
func (s *Store) HasObjectIn(namespace, id string) bool {
	return s.HasObject(namespace + "." + id)
}

// HasState reports whether a state exists under id.
func (s *Store) HasState(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[id]
	return ok
}

// HasStateIn is HasState(namespace + "." + id).
func (s *Store) HasStateIn(namespace, id string) bool {
	return s.HasState(namespace + "." + id)
}

// GetObjects returns every object whose id matches pattern and, when a type
// filter is given, whose type is one of the filter values.
func (s *Store) GetObjects(p string, types ...string) (map[string]Object, error) {
	m, err := pattern.Compile(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Object)
	for id, obj := range s.objects {
		if !m.Test(id) {
			continue
		}
		if len(types) > 0 && !contains(types, obj.Type()) {
			continue
		}
		result[id] = Object(cloneMap(obj))
	}
	return result, nil
}

// GetStates returns every state whose id matches pattern.
func (s *Store) GetStates(p string) (map[string]State, error) {
	m, err := pattern.Compile(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]State)
	for id, state := range s.states {
		if m.Test(id) {
			result[id] = State(cloneMap(state))
		}
	}
	return result, nil
}

// DeleteObject removes the object under id. Missing ids are ignored.
func (s *Store) DeleteObject(id string) {
	s.mu.Lock()
	_, existed := s.objects[id]
	delete(s.objects, id)
	s.mu.Unlock()

	if existed {
		s.notifyObject(id, nil)
	}
}

// DeleteObjectOf removes the object identified by obj's id.
func (s *Store) DeleteObjectOf(obj Object) {
	if id := obj.ID(); id != "" {
		s.DeleteObject(id)
	}
}

// DeleteState removes the state under id. Missing ids are ignored.
func (s *Store) DeleteState(id string) {
	s.mu.Lock()
	_, existed := s.states[id]
	delete(s.states, id)
	s.mu.Unlock()

	if existed {
		s.notifyState(id, nil)
	}
}

// Clear empties both tables without notifying listeners.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]Object)
	s.states = make(map[string]State)
}

// ObjectIDs returns all object ids, sorted.
func (s *Store) ObjectIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.objects)
}

// StateIDs returns all state ids, sorted.
func (s *Store) StateIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.states)
}

// Snapshot is a deep copy of both tables.
type Snapshot struct {
	Objects map[string]Object `json:"objects"`
	States  map[string]State  `json:"states"`
}

// Snapshot copies the current contents of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Objects: make(map[string]Object, len(s.objects)),
		States:  make(map[string]State, len(s.states)),
	}
	for id, obj := range s.objects {
		snap.Objects[id] = Object(cloneMap(obj))
	}
	for id, state := range s.states {
		snap.States[id] = State(cloneMap(state))
	}
	return snap
}

// OnObjectChange registers a listener for object publishes and deletes.
func (s *Store) OnObjectChange(l ObjectListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.objectListeners = append(s.objectListeners, l)
}

// OnStateChange registers a listener for state publishes and deletes.
func (s *Store) OnStateChange(l StateListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.stateListeners = append(s.stateListeners, l)
}

func (s *Store) notifyObject(id string, obj Object) {
	s.lmu.RLock()
	listeners := append([]ObjectListener(nil), s.objectListeners...)
	s.lmu.RUnlock()

	for _, l := range listeners {
		if obj == nil {
			l(id, nil)
			continue
		}
		l(id, Object(cloneMap(obj)))
	}
}

func (s *Store) notifyState(id string, state State) {
	s.lmu.RLock()
	listeners := append([]StateListener(nil), s.stateListeners...)
	s.lmu.RUnlock()

	for _, l := range listeners {
		if state == nil {
			l(id, nil)
			continue
		}
		l(id, State(cloneMap(state)))
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
