package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteInitialParameters writes the turn/coin line, the attacker catalog,
// and the defender catalog to w, in that order, per the pipe wire format:
// first line "<no_of_turns> <no_of_coins>", then attacker count plus one
// row per attacker, then defender count plus one row per defender.
func WriteInitialParameters(w io.Writer, p GameParameters) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%d %d\n", p.NoOfTurns, p.NoOfCoins); err != nil {
		return fmt.Errorf("wire: write turn/coin line: %w", err)
	}

	if _, err := fmt.Fprintf(bw, "%d\n", len(p.Attackers)); err != nil {
		return fmt.Errorf("wire: write attacker count: %w", err)
	}
	for _, a := range p.Attackers {
		aerial := 0
		if a.IsAerial {
			aerial = 1
		}
		if _, err := fmt.Fprintf(bw, "%d %d %d %d %d %d %s\n",
			a.HP, a.Range, a.AttackPower, a.Speed, a.Price, aerial, formatWeight(a.Weight)); err != nil {
			return fmt.Errorf("wire: write attacker row: %w", err)
		}
	}

	if _, err := fmt.Fprintf(bw, "%d\n", len(p.Defenders)); err != nil {
		return fmt.Errorf("wire: write defender count: %w", err)
	}
	for _, d := range p.Defenders {
		aerial := 0
		if d.IsAerial {
			aerial = 1
		}
		// Defenders carry no speed — the 4th column is the literal "0"
		// placeholder spec.md §6 calls for.
		if _, err := fmt.Fprintf(bw, "%d %d %d 0 %d %d\n",
			d.HP, d.Range, d.AttackPower, d.Price, aerial); err != nil {
			return fmt.Errorf("wire: write defender row: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("wire: flush initial parameters: %w", err)
	}
	return nil
}

func formatWeight(w float64) string {
	if w == 0 {
		return "0"
	}
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// WriteMap writes the solo-mode map block: "<rows> <cols>" followed by
// one row per line of space-separated cell integers. raw is the
// JSON-encoded 2D integer array carried in the request's Map field.
func WriteMap(w io.Writer, raw string) error {
	var grid [][]int
	if err := json.Unmarshal([]byte(raw), &grid); err != nil {
		return fmt.Errorf("wire: decode map: %w", err)
	}

	bw := bufio.NewWriter(w)
	cols := 0
	if len(grid) > 0 {
		cols = len(grid[0])
	}
	if _, err := fmt.Fprintf(bw, "%d %d\n", len(grid), cols); err != nil {
		return fmt.Errorf("wire: write map dims: %w", err)
	}
	for _, row := range grid {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strconv.Itoa(c)
		}
		if _, err := fmt.Fprintln(bw, strings.Join(cells, " ")); err != nil {
			return fmt.Errorf("wire: write map row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("wire: flush map: %w", err)
	}
	return nil
}
