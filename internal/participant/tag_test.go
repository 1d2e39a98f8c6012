package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTag_String(t *testing.T) {
	assert.Equal(t, "player_solo", PlayerSolo.String())
	assert.Equal(t, "player1", Player1.String())
	assert.Equal(t, "player2", Player2.String())
	assert.Equal(t, "simulator", Simulator.String())
	assert.Equal(t, "unknown", Tag(99).String())
}

func TestTag_IsPlayer(t *testing.T) {
	assert.True(t, PlayerSolo.IsPlayer())
	assert.True(t, Player1.IsPlayer())
	assert.True(t, Player2.IsPlayer())
	assert.False(t, Simulator.IsPlayer())
}
