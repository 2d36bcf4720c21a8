// Package instruments holds the instruments built into the engine.
package instruments

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
)

// Register every built-in instrument with r.
func RegisterBuiltins(r *plugin.Registry) error {
	return errors.Join(
		r.Register(ToneDescriptor),
		r.Register(SamplerDescriptor),
	)
}
