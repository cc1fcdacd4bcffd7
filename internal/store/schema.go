package store

import (
	"github.com/invopop/jsonschema"
)

// DocumentSchema returns the JSON schema of the document wire format, with
// properties inlined for dashboard introspection.
func DocumentSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return r.Reflect(&Document{})
}

// SampleSchema returns the JSON schema of the timeseries sample wire format.
func SampleSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return r.Reflect(&Sample{})
}
