package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Score is the result of one maze run by a team. It is identified by
// mazeId:teamId:gameId:gameRound.
type Score struct {
	MazeID    string
	TeamID    string
	GameID    string
	GameRound int

	MoveCount      int
	BacktrackCount int
	BonusPoints    int

	GameResult GameResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScore returns a score for the given identity with zeroed results.
func NewScore(mazeID, teamID, gameID string, gameRound int) (*Score, error) {
	s := &Score{
		MazeID:     strings.TrimSpace(mazeID),
		TeamID:     strings.TrimSpace(teamID),
		GameID:     strings.TrimSpace(gameID),
		GameRound:  gameRound,
		GameResult: ResultInProgress,
	}
	if err := s.validateIdentity(); err != nil {
		return nil, err
	}
	return s, nil
}

// ScoreKey derives the composite key from the identity fields.
func (s Score) ScoreKey() string {
	return FormatScoreKey(s.MazeID, s.TeamID, s.GameID, s.GameRound)
}

func FormatScoreKey(mazeID, teamID, gameID string, gameRound int) string {
	return fmt.Sprintf("%s:%s:%s:%d", mazeID, teamID, gameID, gameRound)
}

// Validate checks identity and result fields. Errors wrap ErrValidation.
func (s Score) Validate() error {
	if err := s.validateIdentity(); err != nil {
		return err
	}

	counters := []struct {
		name  string
		value int
	}{
		{"moveCount", s.MoveCount},
		{"backtrackCount", s.BacktrackCount},
		{"bonusPoints", s.BonusPoints},
	}
	for _, c := range counters {
		if c.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrValidation, c.name)
		}
	}

	if !s.GameResult.Valid() {
		return fmt.Errorf("%w: unknown gameResult %q", ErrValidation, s.GameResult)
	}
	return nil
}

func (s Score) validateIdentity() error {
	fields := []struct {
		name  string
		value string
	}{
		{"mazeId", s.MazeID},
		{"teamId", s.TeamID},
		{"gameId", s.GameID},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
		// a separator inside a segment would make two identities share a key
		if strings.Contains(f.value, ":") {
			return fmt.Errorf("%w: %s must not contain ':'", ErrValidation, f.name)
		}
	}
	if s.GameRound < 0 {
		return fmt.Errorf("%w: gameRound must not be negative", ErrValidation)
	}
	return nil
}

type scoreJSON struct {
	ScoreKey       string     `json:"scoreKey"`
	MazeID         string     `json:"mazeId"`
	TeamID         string     `json:"teamId"`
	GameID         string     `json:"gameId"`
	GameRound      int        `json:"gameRound"`
	MoveCount      int        `json:"moveCount"`
	BacktrackCount int        `json:"backtrackCount"`
	BonusPoints    int        `json:"bonusPoints"`
	GameResult     GameResult `json:"gameResult"`
	CreatedAt      time.Time  `json:"createdAt,omitzero"`
	UpdatedAt      time.Time  `json:"updatedAt,omitzero"`
}

func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoreJSON{
		ScoreKey:       s.ScoreKey(),
		MazeID:         s.MazeID,
		TeamID:         s.TeamID,
		GameID:         s.GameID,
		GameRound:      s.GameRound,
		MoveCount:      s.MoveCount,
		BacktrackCount: s.BacktrackCount,
		BonusPoints:    s.BonusPoints,
		GameResult:     s.GameResult,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	})
}

// UnmarshalJSON decodes and validates a score. A scoreKey in the payload is
// ignored; the key is always derived from the identity fields.
func (s *Score) UnmarshalJSON(data []byte) error {
	var raw scoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		if errors.Is(err, ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	decoded := Score{
		MazeID:         strings.TrimSpace(raw.MazeID),
		TeamID:         strings.TrimSpace(raw.TeamID),
		GameID:         strings.TrimSpace(raw.GameID),
		GameRound:      raw.GameRound,
		MoveCount:      raw.MoveCount,
		BacktrackCount: raw.BacktrackCount,
		BonusPoints:    raw.BonusPoints,
		GameResult:     raw.GameResult,
		CreatedAt:      raw.CreatedAt,
		UpdatedAt:      raw.UpdatedAt,
	}
	if decoded.GameResult == "" {
		decoded.GameResult = ResultInProgress
	}
	if err := decoded.Validate(); err != nil {
		return err
	}

	*s = decoded
	return nil
}
