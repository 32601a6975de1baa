// Package model provides the thin instance/constructor abstraction spec
// §9 describes as orthogonal to the storage engine: "a constructor
// `(payload, id) -> instance`". The full virtual-property getter/setter
// machinery of the original model layer is explicitly out of scope for
// the engine; this is only the shape the engine needs to hand results
// back to a caller.
package model

// Instance is a payload paired with the id the engine assigned it.
type Instance struct {
	ID      uint32
	Payload map[string]any
}

// Constructor builds a caller-facing Instance from a stored payload and
// id. The default constructor just wraps the two; callers that want a
// typed struct or virtual properties supply their own.
type Constructor func(payload map[string]any, id uint32) Instance

// Default is the identity constructor used when a collection is opened
// without a custom one.
func Default(payload map[string]any, id uint32) Instance {
	return Instance{ID: id, Payload: payload}
}
