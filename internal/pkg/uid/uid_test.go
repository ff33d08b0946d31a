package uid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID_Generate(t *testing.T) {
	id, err := uuid.Parse(NewUUID().Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestSnowflake_Generate(t *testing.T) {
	sf, err := NewSnowflake()
	require.NoError(t, err)

	a, b := sf.Generate(), sf.Generate()
	assert.Positive(t, a)
	assert.Greater(t, b, a)
}
