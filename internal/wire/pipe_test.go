package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteInitialParameters(t *testing.T) {
	params := GameParameters{
		Attackers: []Attacker{
			{HP: 100, Range: 2, AttackPower: 10, Speed: 5, Price: 50, IsAerial: true, Weight: 1.5},
		},
		Defenders: []Defender{
			{HP: 200, Range: 3, AttackPower: 20, Price: 80},
		},
		NoOfTurns: 10,
		NoOfCoins: 500,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInitialParameters(&buf, params))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "10 500", lines[0])
	assert.Equal(t, "1", lines[1])
	assert.Equal(t, "100 2 10 5 50 1 1.5", lines[2])
	assert.Equal(t, "1", lines[3])
	assert.Equal(t, "200 3 20 0 80 0", lines[4])
}

func TestWriteInitialParameters_NoUnits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInitialParameters(&buf, GameParameters{NoOfTurns: 1, NoOfCoins: 2}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"1 2", "0", "0"}, lines)
}

func TestWriteMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMap(&buf, `[[1,2,3],[4,5,6]]`))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2 3", lines[0])
	assert.Equal(t, "1 2 3", lines[1])
	assert.Equal(t, "4 5 6", lines[2])
}

func TestWriteMap_InvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteMap(&buf, `not json`))
}
