package observe

// ComponentMeta identifies the cache and component type an event belongs to.
type ComponentMeta struct {
	Cache     string // Cache name (optional)
	Component string // Component type (required)
}

// ID returns the fully qualified identifier: cache.component or component.
func (m ComponentMeta) ID() string {
	if m.Cache != "" {
		return m.Cache + "." + m.Component
	}
	return m.Component
}

// SpanName returns the deterministic span name for an operation.
// Format: instance.<op>.<component>
func (m ComponentMeta) SpanName(op string) string {
	return "instance." + op + "." + m.Component
}
