package wire

// GameStatusEnum is the closed set of lifecycle states published for a
// request. Every request transitions IDLE -> EXECUTING -> one terminal
// state exactly once each.
type GameStatusEnum string

const (
	GameStatusIdle         GameStatusEnum = "IDLE"
	GameStatusExecuting    GameStatusEnum = "EXECUTING"
	GameStatusExecuted     GameStatusEnum = "EXECUTED"
	GameStatusExecuteError GameStatusEnum = "EXECUTE_ERROR"
)

// GameResult is the per-participant (or whole-match, for solo) outcome
// block. HasErrors and Log are always populated; DestructionPercentage
// and CoinsUsed are meaningful only on a clean EXECUTED outcome.
type GameResult struct {
	DestructionPercentage float64 `json:"destruction_percentage"`
	CoinsUsed             int     `json:"coins_used"`
	HasErrors             bool    `json:"has_errors"`
	Log                   string  `json:"log"`
}

// GameStatus is the single outbound status message shape. For solo
// matches only GameResult is populated; for versus matches the two
// per-player fields are populated instead and GameResult is left zero.
type GameStatus struct {
	GameID              string         `json:"game_id"`
	GameStatus          GameStatusEnum `json:"game_status"`
	GameResult          *GameResult    `json:"game_result,omitempty"`
	GameResultPlayer1   *GameResult    `json:"game_result_player1,omitempty"`
	GameResultPlayer2   *GameResult    `json:"game_result_player2,omitempty"`
}

// Executing builds the single EXECUTING message published at intake.
func Executing(gameID string) GameStatus {
	return GameStatus{GameID: gameID, GameStatus: GameStatusExecuting}
}
