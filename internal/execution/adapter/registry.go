package adapter

import (
	"strings"

	appErr "codeexec/pkg/errors"
)

// Registry maps language ids and aliases to adapters. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	adapters map[string]*Adapter
	aliases  map[string]string
	order    []string
}

// NewRegistry indexes adapters by id and alias.
func NewRegistry(adapters ...*Adapter) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]*Adapter, len(adapters)),
		aliases:  make(map[string]string),
	}
	for _, a := range adapters {
		if a == nil || a.id == "" {
			return nil, appErr.New(appErr.InvalidParams).WithMessage("adapter id is required")
		}
		if r.taken(a.id) {
			return nil, appErr.Newf(appErr.InvalidParams, "duplicate language id %q", a.id)
		}
		r.adapters[a.id] = a
		r.order = append(r.order, a.id)
		for _, alias := range a.aliases {
			alias = normalizeID(alias)
			if r.taken(alias) {
				return nil, appErr.Newf(appErr.InvalidParams, "duplicate language alias %q", alias)
			}
			r.aliases[alias] = a.id
		}
	}
	return r, nil
}

// Get resolves an id or alias, ignoring case and surrounding space.
func (r *Registry) Get(id string) (*Adapter, bool) {
	key := normalizeID(id)
	if a, ok := r.adapters[key]; ok {
		return a, true
	}
	if canonical, ok := r.aliases[key]; ok {
		return r.adapters[canonical], true
	}
	return nil, false
}

// List returns adapters in registration order.
func (r *Registry) List() []*Adapter {
	out := make([]*Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

func (r *Registry) taken(key string) bool {
	_, isID := r.adapters[key]
	_, isAlias := r.aliases[key]
	return isID || isAlias
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
