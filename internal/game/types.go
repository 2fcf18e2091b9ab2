package game

import (
	"time"
)

type State string

const (
	StateOpen      State = "Open"
	StateAwaiting  State = "AwaitingTurn"
	StateCompleted State = "Completed"
	StateAbandoned State = "Abandoned"
)

// Terminal reports whether no further mutation is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

type Config struct {
	Players      int `json:"players"`
	WordsPerTurn int `json:"wordsPerTurn"`
	WindowSize   int `json:"windowSize"`
	MaxTurns     int `json:"maxTurns"` // 0 = unlimited
}

const (
	DefaultPlayers      = 2
	DefaultWordsPerTurn = 6
	DefaultWindowSize   = 1
	DefaultMaxTurns     = 8
)

// WithDefaults fills unset fields with the standard two-player game.
func (c Config) WithDefaults() Config {
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.WordsPerTurn <= 0 {
		c.WordsPerTurn = DefaultWordsPerTurn
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxTurns < 0 {
		c.MaxTurns = 0
	}
	return c
}

// Contribution is one accepted turn. Immutable once recorded.
type Contribution struct {
	Author    string    `json:"author"`
	Words     []string  `json:"words"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the durable representation of a Session: everything needed
// to rebuild it after a restart.
type Snapshot struct {
	ID            string         `json:"id"`
	Config        Config         `json:"config"`
	Roster        []string       `json:"roster"`
	State         State          `json:"state"`
	ActiveWriter  string         `json:"activeWriter"`
	Contributions []Contribution `json:"contributions"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Status is the read-only view returned to a roster member. Window holds
// the words the participant would be shown for their turn; it never exceeds
// the configured visibility window. FullText is set only once the poem is
// complete.
type Status struct {
	SessionID    string   `json:"sessionId"`
	State        State    `json:"state"`
	Turn         int      `json:"turn"`
	MaxTurns     int      `json:"maxTurns"`
	ActiveWriter string   `json:"activeWriter,omitempty"`
	YourTurn     bool     `json:"yourTurn"`
	Window       []string `json:"window"`
	FullText     string   `json:"fullText,omitempty"`
}
