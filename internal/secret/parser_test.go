package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("${env:API_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "env", ref.Type)
	assert.Equal(t, "API_KEY", ref.Name)
	assert.Equal(t, "${env:API_KEY}", ref.Original)
}

func TestParseRefInvalid(t *testing.T) {
	_, err := ParseRef("plain value")
	assert.Error(t, err)

	_, err = ParseRef("${novalue}")
	assert.Error(t, err)
}

func TestContainsRef(t *testing.T) {
	assert.True(t, ContainsRef("prefix ${file:/run/secrets/db} suffix"))
	assert.False(t, ContainsRef("no refs here"))
	assert.False(t, ContainsRef("${unclosed"))
}

func TestFindRefs(t *testing.T) {
	refs := FindRefs("${env:A}/${keyring:b}")
	require.Len(t, refs, 2)
	assert.Equal(t, "env", refs[0].Type)
	assert.Equal(t, "A", refs[0].Name)
	assert.Equal(t, "keyring", refs[1].Type)
	assert.Equal(t, "b", refs[1].Name)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", MaskValue("abc"))
	assert.Equal(t, "se****", MaskValue("secret"))
	assert.Equal(t, "sup****et", MaskValue("supersecret"))
}
