package sqlutil

import (
	"encoding/json"
	"testing"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyMetadataIsNull(t *testing.T) {
	val, err := ToNullRawMessage(nil)
	require.NoError(t, err)
	assert.False(t, val.Valid)

	m, err := FromNullRawMessage(pqtype.NullRawMessage{})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMetadataEncoding(t *testing.T) {
	val, err := ToNullRawMessage(map[string]any{"topic": "biology"})
	require.NoError(t, err)
	require.True(t, val.Valid)
	assert.JSONEq(t, `{"topic":"biology"}`, string(val.RawMessage))

	_, err = FromNullRawMessage(pqtype.NullRawMessage{RawMessage: json.RawMessage(`[1,2]`), Valid: true})
	assert.Error(t, err)
}
