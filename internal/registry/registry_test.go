package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	r, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, r.Len())

	deu, ok := r.ByCode("DEU")
	require.True(t, ok)
	assert.Equal(t, "Germany", deu.Name)

	are, ok := r.ByCode("ARE")
	require.True(t, ok)
	assert.Equal(t, "United Arab Emirates", are.Name)

	_, ok = r.ByCode("XXX")
	assert.False(t, ok)
}

func TestLoad_CodesAreSortedAndThreeLetter(t *testing.T) {
	t.Parallel()

	r, err := Load()
	require.NoError(t, err)

	codes := r.Codes()
	require.Len(t, codes, r.Len())
	for i, code := range codes {
		assert.Len(t, code, 3)
		if i > 0 {
			assert.Less(t, codes[i-1], code)
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()

	r, err := Load()
	require.NoError(t, err)

	all := r.All()
	all[0].Name = "Mutated"

	again := r.All()
	assert.NotEqual(t, "Mutated", again[0].Name)
}
