package router

import (
	"github.com/swarmworks/hivegate/src/models"
	"github.com/swarmworks/hivegate/src/registry"
)

// Router maps a request's declared priority and complexity to a backend
// name, against the registry's current availability view. Resolve answers
// once per call: it never retries, never sleeps, and never mutates
// availability state.
type Router struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// Preference order per complexity class. First usable kind wins.
var kindPreference = map[models.Complexity][]registry.Kind{
	models.ComplexityUltra: {registry.KindCloud, registry.KindRemote, registry.KindLocal},
	models.ComplexityHigh:  {registry.KindRemote, registry.KindCloud, registry.KindLocal},
}

// Resolve picks a backend name. Precedence, first match wins:
//
//  1. explicit backend override, verbatim
//  2. einstein: reasoning cloud backend or ReasoningUnavailable
//  3. ultra: cloud > remote > local, first usable
//  4. high: remote > cloud > local, first usable
//  5. low: local if usable
//  6. no complexity, priority high, remote usable: remote (legacy callers)
//  7. the default-flagged backend, regardless of usability
//
// exclude removes one backend from consideration; the dispatcher passes
// the failed backend's name on its single fallback re-resolve. The
// exclusion is scoped to this call and leaves availability state alone.
func (r *Router) Resolve(priority models.Priority, complexity models.Complexity, explicit, exclude string) (string, error) {
	if explicit != "" {
		if _, err := r.reg.Get(explicit); err != nil {
			return "", err
		}
		if explicit == exclude {
			return "", models.ErrNoAlternativeBackend
		}
		return explicit, nil
	}

	switch complexity {
	case models.ComplexityEinstein:
		// Reasoning output fields are backend-specific and cannot be
		// faked by a non-reasoning backend; no substitution.
		b, ok := r.reg.ByKind(registry.KindCloud)
		if !ok || b.Name == exclude || !r.reg.IsUsable(b.Name) {
			return "", models.ErrReasoningUnavailable
		}
		return b.Name, nil

	case models.ComplexityUltra, models.ComplexityHigh:
		if name, ok := r.firstUsable(kindPreference[complexity], exclude); ok {
			return name, nil
		}

	case models.ComplexityLow:
		if b, ok := r.reg.ByKind(registry.KindLocal); ok && b.Name != exclude && r.reg.IsUsable(b.Name) {
			return b.Name, nil
		}

	case models.ComplexityNone:
		if priority == models.PriorityHigh {
			if b, ok := r.reg.ByKind(registry.KindRemote); ok && b.Name != exclude && r.reg.IsUsable(b.Name) {
				return b.Name, nil
			}
		}
	}

	// Fallback: the default backend, usable or not. Surfacing
	// unavailability is the dispatcher's job, not the router's.
	def := r.reg.Default()
	if def == nil {
		return "", models.ErrNoAlternativeBackend
	}
	if def.Name == exclude {
		return "", models.ErrNoAlternativeBackend
	}
	return def.Name, nil
}

func (r *Router) firstUsable(kinds []registry.Kind, exclude string) (string, bool) {
	for _, kind := range kinds {
		b, ok := r.reg.ByKind(kind)
		if !ok || b.Name == exclude {
			continue
		}
		if r.reg.IsUsable(b.Name) {
			return b.Name, true
		}
	}
	return "", false
}
