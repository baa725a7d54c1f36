package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factoryFor(p Plugin, abi ABI, magic uint32, short string) Factory {
	return func() *Descriptor {
		return &Descriptor{Magic: magic, ABI: abi, Name: "Test " + short, ShortName: short, Plugin: p}
	}
}

func TestRegistryLoadAccepts(t *testing.T) {
	reg := NewRegistry(nil)
	for _, tc := range []struct {
		abi   ABI
		magic uint32
		short string
	}{
		{ABIv1, MagicV1, "legacy"},
		{ABIv2, MagicV2, "cands"},
		{ABICv1, MagicCV1, "cabi"},
	} {
		desc, err := reg.Load(factoryFor(&fakePlugin{}, tc.abi, tc.magic, tc.short))
		require.NoError(t, err, tc.short)
		assert.Equal(t, tc.short, desc.ShortName)
	}

	assert.Len(t, reg.Plugins(), 3)
	assert.Empty(t, reg.Rejected())
	d, ok := reg.Lookup("cands")
	require.True(t, ok)
	assert.Equal(t, ABIv2, d.ABI)
}

func TestRegistryRejectsMagicMismatch(t *testing.T) {
	reg := NewRegistry(nil)
	p := &fakePlugin{}

	_, err := reg.Load(factoryFor(p, ABIv2, MagicV1, "wrong"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrABIMismatch))

	_, err = reg.Load(factoryFor(p, ABI(9), MagicV2, "future"))
	assert.True(t, errors.Is(err, ErrABIMismatch))

	assert.Empty(t, reg.Plugins())
	require.Len(t, reg.Rejected(), 2)
	assert.Equal(t, "Test wrong", reg.Rejected()[0].Name)

	// A rejected plugin is never called, even by a host.
	host, err := NewHost(reg, HostConfig{Lister: &fakeLister{}})
	require.NoError(t, err)
	host.Step(testContext(t))
	assert.Zero(t, p.calls())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.Load(nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = reg.Load(func() *Descriptor { return nil })
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = reg.Load(func() *Descriptor { panic("boom") })
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = reg.Load(factoryFor(&fakePlugin{}, ABIv2, MagicV2, ""))
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = reg.Load(factoryFor(nil, ABIv2, MagicV2, "noimpl"))
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	assert.Len(t, reg.Rejected(), 5)
}

func TestRegistryRejectsDuplicateShortName(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Load(factoryFor(&fakePlugin{}, ABIv2, MagicV2, "game"))
	require.NoError(t, err)
	_, err = reg.Load(factoryFor(&fakePlugin{}, ABIv2, MagicV2, "game"))
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
	assert.Len(t, reg.Plugins(), 1)
}

func TestNamespaceContext(t *testing.T) {
	assert.Equal(t, "", NamespaceContext("bf2", nil))
	assert.Equal(t, "bf2\x00server:1", NamespaceContext("bf2", []byte("server:1")))
}

func TestABIString(t *testing.T) {
	assert.Equal(t, "v1", ABIv1.String())
	assert.Equal(t, "c-v1", ABICv1.String())
	assert.Equal(t, "abi(7)", ABI(7).String())
	assert.False(t, ABIv1.WantsCandidates())
	assert.True(t, ABICv1.WantsCandidates())
}
