package provgraph

// ScriptRegistry maps script numbers to paths. The main script is number 1;
// nested inclusions register fresh numbers in encounter order, so spans can
// name their source across script boundaries.
type ScriptRegistry struct {
	paths []string
}

// NewScriptRegistry creates an empty registry.
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{}
}

// Register records a script path and returns its number (1-based).
// The same path registered twice gets two numbers: each inclusion is a
// distinct execution.
func (r *ScriptRegistry) Register(path string) int {
	r.paths = append(r.paths, path)
	return len(r.paths)
}

// Path returns the path for a script number, or "" if unknown.
func (r *ScriptRegistry) Path(num int) string {
	if num < 1 || num > len(r.paths) {
		return ""
	}
	return r.paths[num-1]
}

// Count returns the number of registered scripts.
func (r *ScriptRegistry) Count() int { return len(r.paths) }

// Paths returns all registered paths in registration order.
// The slice is shared; callers must not modify it.
func (r *ScriptRegistry) Paths() []string { return r.paths }
