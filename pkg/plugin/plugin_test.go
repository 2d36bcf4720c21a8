package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlugin struct {
	desc *Descriptor
}

func (p stubPlugin) Descriptor() *Descriptor           { return p.desc }
func (p stubPlugin) SetParameter(string, string) error { return ErrUnknownParameter }
func (p stubPlugin) Parameter(string) (string, error)  { return "", ErrUnknownParameter }

type presets struct{}

func (presets) SubPluginKeys(d *Descriptor) []Key {
	return []Key{{Name: "soft", User: "1"}, {Name: "loud", User: "2"}}
}
func (presets) SupportedExtensions() []string { return nil }

func stubDescriptor(name string, t Type) *Descriptor {
	d := &Descriptor{Name: name, PublicName: name, Type: t}
	d.Instantiate = func(any) (Plugin, error) { return stubPlugin{desc: d}, nil }
	return d
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Instrument", TypeInstrument.String())
	assert.Equal(t, "Other", TypeOther.String())
	assert.Equal(t, "Undefined", TypeUndefined.String())
	assert.Equal(t, Type(255), TypeUndefined)
}

func TestKeyDumpAndParse(t *testing.T) {
	k := Key{Name: "saw lead", User: "3"}
	parsed := ParseKey(k.Dump())
	assert.Equal(t, k, parsed)

	assert.Equal(t, Key{}, ParseKey("not base64!"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubDescriptor("b", TypeInstrument)))
	require.NoError(t, r.Register(stubDescriptor("a", TypeInstrument)))
	require.NoError(t, r.Register(stubDescriptor("fx", TypeEffect)))

	assert.ErrorIs(t, r.Register(stubDescriptor("a", TypeTool)), ErrDuplicatePlugin)
	assert.Error(t, r.Register(&Descriptor{}))

	instruments := r.Descriptors(TypeInstrument)
	require.Len(t, instruments, 2)
	assert.Equal(t, "a", instruments[0].Name)
	assert.Len(t, r.Descriptors(TypeUndefined), 3)

	p, err := r.Instantiate("fx", nil)
	require.NoError(t, err)
	assert.Equal(t, TypeEffect, p.Descriptor().Type)

	_, err = r.Instantiate("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownPlugin)

	_, err = r.InstantiateInstrument("fx", nil)
	assert.ErrorIs(t, err, ErrNotInstantiable)

	require.NoError(t, r.Register(&Descriptor{Name: "lib", Type: TypeLibrary}))
	_, err = r.Instantiate("lib", nil)
	assert.ErrorIs(t, err, ErrNotInstantiable)
}

func TestRegistrySubPluginKeys(t *testing.T) {
	r := NewRegistry()
	d := stubDescriptor("synth", TypeInstrument)
	d.SubPluginFeatures = presets{}
	require.NoError(t, r.Register(d))
	require.NoError(t, r.Register(stubDescriptor("plain", TypeInstrument)))

	keys := r.SubPluginKeys(TypeInstrument)
	require.Len(t, keys, 2)
	assert.Same(t, d, keys[0].Descriptor)
	assert.Equal(t, "soft", keys[0].Name)
	assert.Empty(t, r.SubPluginKeys(TypeEffect))
}
