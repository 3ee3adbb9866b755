package ehr

import (
	"fmt"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// Registry selects the adapter for a configuration's ehr_system.
type Registry struct {
	adapters map[fhirmodels.EHRSystem]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[fhirmodels.EHRSystem]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.System()] = a
	}
	return r
}

// NewDefaultRegistry wires the Cerner and Epic adapters onto one client.
func NewDefaultRegistry(client *RESTClient) *Registry {
	return NewRegistry(NewCernerAdapter(client), NewEpicAdapter(client))
}

func (r *Registry) Adapter(system fhirmodels.EHRSystem) (Adapter, error) {
	a, ok := r.adapters[system]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVendor, system)
	}
	return a, nil
}
