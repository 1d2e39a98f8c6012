package wire

import (
	"encoding/json"
	"fmt"
)

// Language is the closed set of languages the compile step and runner
// collaborators know how to build and execute.
type Language string

const (
	LanguageCPP    Language = "CPP"
	LanguageJava   Language = "JAVA"
	LanguagePython Language = "PYTHON"
)

// Attacker mirrors one entry of a request's attacker catalog.
type Attacker struct {
	ID          int     `json:"id"`
	HP          int     `json:"hp"`
	Range       int     `json:"range"`
	AttackPower int     `json:"attack_power"`
	Speed       int     `json:"speed"`
	Price       int     `json:"price"`
	IsAerial    bool    `json:"is_aerial,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Defender mirrors one entry of a request's defender catalog. Defenders
// have no speed — the pipe wire format fills that column with a
// placeholder zero.
type Defender struct {
	ID          int  `json:"id"`
	HP          int  `json:"hp"`
	Range       int  `json:"range"`
	AttackPower int  `json:"attack_power"`
	Price       int  `json:"price"`
	IsAerial    bool `json:"is_aerial,omitempty"`
}

// GameParameters is the shared unit-catalog-plus-rules block present in
// every request shape.
type GameParameters struct {
	Attackers  []Attacker `json:"attackers"`
	Defenders  []Defender `json:"defenders"`
	NoOfTurns  int        `json:"no_of_turns"`
	NoOfCoins  int        `json:"no_of_coins"`
}

// PlayerCode is one player's submission: source text plus the language
// the compile step must select a toolchain for.
type PlayerCode struct {
	SourceCode string   `json:"source_code"`
	Language   Language `json:"language"`
}

// NormalGameRequest is the solo-mode inbound message: one player against
// the simulator-driven environment, on a supplied map.
type NormalGameRequest struct {
	GameID     string         `json:"game_id"`
	Parameters GameParameters `json:"parameters"`
	PlayerCode PlayerCode     `json:"player_code"`
	Map        string         `json:"map"`
}

// PvPGameRequest is the versus-mode inbound message: two players against
// each other, no map (the simulator generates or omits terrain).
type PvPGameRequest struct {
	GameID     string         `json:"game_id"`
	Parameters GameParameters `json:"parameters"`
	Player1    PlayerCode     `json:"player1"`
	Player2    PlayerCode     `json:"player2"`
}

// Kind discriminates the two inbound request shapes after a probe parse.
type Kind int

const (
	KindUnknown Kind = iota
	KindSolo
	KindVersus
)

// probe is used only to discriminate shape: a versus request carries
// player1/player2 and omits player_code, a solo request is the reverse.
type probe struct {
	PlayerCode json.RawMessage `json:"player_code"`
	Player1    json.RawMessage `json:"player1"`
	Player2    json.RawMessage `json:"player2"`
}

// Sniff inspects raw to determine whether it is a solo or versus request
// without fully unmarshaling either shape, then returns the discriminated
// Kind for the caller to dispatch a second, shape-specific Unmarshal.
func Sniff(raw []byte) (Kind, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return KindUnknown, fmt.Errorf("wire: sniff request: %w", err)
	}
	switch {
	case p.PlayerCode != nil:
		return KindSolo, nil
	case p.Player1 != nil && p.Player2 != nil:
		return KindVersus, nil
	default:
		return KindUnknown, fmt.Errorf("wire: request has neither player_code nor player1/player2")
	}
}
