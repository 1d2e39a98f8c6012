package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff_Solo(t *testing.T) {
	raw := []byte(`{"game_id":"abc","player_code":{"source_code":"x","language":"CPP"}}`)
	kind, err := Sniff(raw)
	require.NoError(t, err)
	assert.Equal(t, KindSolo, kind)
}

func TestSniff_Versus(t *testing.T) {
	raw := []byte(`{"game_id":"abc","player1":{},"player2":{}}`)
	kind, err := Sniff(raw)
	require.NoError(t, err)
	assert.Equal(t, KindVersus, kind)
}

func TestSniff_Unknown(t *testing.T) {
	raw := []byte(`{"game_id":"abc"}`)
	_, err := Sniff(raw)
	assert.Error(t, err)
}

func TestSniff_MalformedJSON(t *testing.T) {
	_, err := Sniff([]byte(`not json`))
	assert.Error(t, err)
}
