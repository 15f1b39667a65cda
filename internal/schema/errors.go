package schema

import "fmt"

// SchemaError reports a schema declaration that cannot be resolved, such as
// a relationship field whose target type is not registered. It is fatal to
// classifier construction for the offending type.
type SchemaError struct {
	Type   string // the type being resolved or classified
	Field  string // offending field, if any
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error: %s.%s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema error: %s: %s", e.Type, e.Reason)
}
