package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// Summary is the numeric result the transcript's simulator lines carry,
// extracted once while folding so callers don't need a second pass.
type Summary struct {
	DestructionPercentage float64
	CoinsUsed             int
}

// playerTurns maps a turn number to the PRINT-worthy lines a player
// emitted during that turn, parsed from its "TURN <n>" ... "ENDLOG"
// bracketed blocks.
type playerTurns map[int][]string

func parsePlayerLog(log string) playerTurns {
	turns := make(playerTurns)
	var current int
	inBlock := false

	for _, line := range strings.Split(log, "\n") {
		switch {
		case strings.HasPrefix(line, "TURN ") && !strings.HasPrefix(line, "TURN,"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TURN ")))
			if err != nil {
				continue
			}
			current = n
			inBlock = true
		case line == "ENDLOG":
			inBlock = false
		case inBlock:
			turns[current] = append(turns[current], line)
		}
	}
	return turns
}

// Fold interleaves playerLogs under the matching simulator "TURN, n"
// marker and returns the combined transcript alongside the Summary
// pulled from the simulator's COINS/DESTRUCTION lines.
//
// For a solo match pass exactly one player log. For a versus match pass
// exactly two, in (player1, player2) order; the simulator's "DELIMITER"
// lines switch which of the two is currently being folded in, starting
// with player1.
func Fold(simulatorLog string, playerLogs ...string) (string, Summary) {
	parsed := make([]playerTurns, len(playerLogs))
	for i, l := range playerLogs {
		parsed[i] = parsePlayerLog(l)
	}

	var out strings.Builder
	var summary Summary
	active := 0

	for _, line := range strings.Split(simulatorLog, "\n") {
		out.WriteString(line)
		out.WriteByte('\n')

		switch {
		case line == "DELIMITER":
			active++
			if active >= len(parsed) {
				active = len(parsed) - 1
			}
			continue
		case strings.HasPrefix(line, "COINS, "):
			if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "COINS, "))); err == nil {
				summary.CoinsUsed = v
			}
			continue
		case strings.HasPrefix(line, "DESTRUCTION, "):
			raw := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, "DESTRUCTION, ")), "%")
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				summary.DestructionPercentage = v
			}
			continue
		case strings.HasPrefix(line, "TURN, "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TURN, ")))
			if err != nil || len(parsed) == 0 {
				continue
			}
			for _, printed := range parsed[active][n] {
				fmt.Fprintf(&out, "PRINT, %s\n", printed)
			}
		}
	}

	return strings.TrimSuffix(out.String(), "\n"), summary
}
