package variant

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrUnknownVariantType is returned when a tag has no registered combine function.
	ErrUnknownVariantType = errors.New("unknown variant type")

	// ErrVariantTypeMismatch is returned by combine functions handed values
	// whose tags they cannot add together.
	ErrVariantTypeMismatch = errors.New("variant type mismatch")

	// ErrDuplicateRegistration is returned when a tag is already bound to a
	// different function.
	ErrDuplicateRegistration = errors.New("duplicate variant registration")
)

// CombineFunc adds two values and returns a new one. It must not mutate its inputs.
type CombineFunc func(a, b Value) (Value, error)

// DebugStringFunc renders the payload part of a value for DebugString.
type DebugStringFunc func(v Value) (string, error)

type entry struct {
	combine CombineFunc
	debug   DebugStringFunc
}

// Registry maps type tags to combine functions.
//
// Registrations are expected to happen at startup, before lookups start;
// both paths are guarded so late registration is still safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// NewDefaultRegistry returns a registry with the builtin kinds registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		// Builtins are registered into a fresh registry and cannot collide.
		panic(err)
	}
	return r
}

// Register binds fn to tag. Registering the same function twice is a no-op.
func (r *Registry) Register(tag string, fn CombineFunc) error {
	if tag == "" {
		return fmt.Errorf("register: empty type tag")
	}
	if fn == nil {
		return fmt.Errorf("register %q: nil combine function", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tag]
	if !ok {
		r.entries[tag] = &entry{combine: fn}
		return nil
	}
	if e.combine == nil {
		e.combine = fn
		return nil
	}
	if !sameFunc(e.combine, fn) {
		return fmt.Errorf("%w: combine function for %q", ErrDuplicateRegistration, tag)
	}
	return nil
}

// RegisterDebugString binds a renderer to tag, with the same duplicate rules as Register.
func (r *Registry) RegisterDebugString(tag string, fn DebugStringFunc) error {
	if tag == "" {
		return fmt.Errorf("register debug string: empty type tag")
	}
	if fn == nil {
		return fmt.Errorf("register debug string %q: nil function", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tag]
	if !ok {
		r.entries[tag] = &entry{debug: fn}
		return nil
	}
	if e.debug == nil {
		e.debug = fn
		return nil
	}
	if !sameFunc(e.debug, fn) {
		return fmt.Errorf("%w: debug string function for %q", ErrDuplicateRegistration, tag)
	}
	return nil
}

// Lookup returns the combine function for tag.
func (r *Registry) Lookup(tag string) (CombineFunc, error) {
	r.mu.RLock()
	e, ok := r.entries[tag]
	r.mu.RUnlock()

	if !ok || e.combine == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariantType, tag)
	}
	return e.combine, nil
}

// Combine looks up the function for a's tag and applies it to (a, b).
func (r *Registry) Combine(a, b Value) (Value, error) {
	fn, err := r.Lookup(a.TypeName)
	if err != nil {
		return Value{}, err
	}
	return fn(a, b)
}

// DebugString renders v as "Variant<type: T value: V>".
func (r *Registry) DebugString(v Value) string {
	r.mu.RLock()
	e, ok := r.entries[v.TypeName]
	r.mu.RUnlock()

	if !ok || e.debug == nil {
		return v.String()
	}
	s, err := e.debug(v)
	if err != nil {
		return fmt.Sprintf("Variant<type: %s value: <%v>>", v.TypeName, err)
	}
	return fmt.Sprintf("Variant<type: %s value: %s>", v.TypeName, s)
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.entries))
	for tag, e := range r.entries {
		if e.combine != nil {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// sameFunc compares functions by code pointer. Closures created from the
// same literal compare equal.
func sameFunc(a, b any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
