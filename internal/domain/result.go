package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GameResult is the outcome of a maze run. The numeric index matches the
// order the game engine reports results in.
type GameResult string

const (
	ResultWin         GameResult = "WIN"
	ResultInProgress  GameResult = "IN_PROGRESS"
	ResultOutOfMoves  GameResult = "OUT_OF_MOVES"
	ResultOutOfTime   GameResult = "OUT_OF_TIME"
	ResultDeathTrap   GameResult = "DEATH_TRAP"
	ResultDeathPoison GameResult = "DEATH_POISON"
)

var GameResults = []GameResult{
	ResultWin,
	ResultInProgress,
	ResultOutOfMoves,
	ResultOutOfTime,
	ResultDeathTrap,
	ResultDeathPoison,
}

// ParseGameResult accepts a result name (any case) or its numeric index.
func ParseGameResult(s string) (GameResult, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: gameResult is required", ErrValidation)
	}

	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 || i >= len(GameResults) {
			return "", fmt.Errorf("%w: gameResult index %d out of range", ErrValidation, i)
		}
		return GameResults[i], nil
	}

	r := GameResult(strings.ToUpper(s))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown gameResult %q", ErrValidation, s)
	}
	return r, nil
}

func (r GameResult) Valid() bool {
	return r.Index() >= 0
}

// Index returns the numeric value of the result, or -1 when unknown.
func (r GameResult) Index() int {
	for i, v := range GameResults {
		if v == r {
			return i
		}
	}
	return -1
}

func (r GameResult) String() string {
	return string(r)
}

// UnmarshalJSON accepts either the name or the numeric index.
func (r *GameResult) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("%w: gameResult index %v is not an integer", ErrValidation, v)
		}
		s = strconv.Itoa(int(v))
	case nil:
		*r = ""
		return nil
	default:
		return fmt.Errorf("%w: gameResult must be a string or number", ErrValidation)
	}

	parsed, err := ParseGameResult(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
