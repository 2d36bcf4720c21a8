package plugin

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// The descriptors of all available plugins.
type Registry struct {
	mutex       sync.RWMutex
	descriptors map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
	}
}

func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("%w: descriptor without name", ErrNotInstantiable)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.descriptors[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Descriptors of the given type sorted by name, or of every type for TypeUndefined.
func (r *Registry) Descriptors(t Type) []*Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if t == TypeUndefined || d.Type == t {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b *Descriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Every sub-plugin key of the plugins of type t, with Key.Descriptor set.
func (r *Registry) SubPluginKeys(t Type) []Key {
	var keys []Key
	for _, d := range r.Descriptors(t) {
		if d.SubPluginFeatures == nil {
			continue
		}
		for _, k := range d.SubPluginFeatures.SubPluginKeys(d) {
			k.Descriptor = d
			keys = append(keys, k)
		}
	}
	return keys
}

// Create an instance of the named plugin.
func (r *Registry) Instantiate(name string, data any) (Plugin, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	if d.Instantiate == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstantiable, name)
	}
	return d.Instantiate(data)
}

// Create an instance of the named plugin, which must be an Instrument.
func (r *Registry) InstantiateInstrument(name string, data any) (Instrument, error) {
	p, err := r.Instantiate(name, data)
	if err != nil {
		return nil, err
	}
	inst, ok := p.(Instrument)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s, not an instrument", ErrNotInstantiable, name, p.Descriptor().Type)
	}
	return inst, nil
}
