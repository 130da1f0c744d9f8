package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classync/pkg/types"
)

func TestConn_WriteJSONAfterCloseFails(t *testing.T) {
	conn := bareConn("student1", types.RoleStudent, "room-1")
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")

	err := conn.WriteJSON(map[string]string{"hello": "world"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConn_WriteJSONRejectsUnmarshalableValue(t *testing.T) {
	conn := bareConn("student1", types.RoleStudent, "room-1")
	defer conn.Close()

	err := conn.WriteJSON(make(chan int))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}
