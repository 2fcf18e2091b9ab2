package game

import (
	"strings"
)

// ParseWords splits raw input into word tokens on whitespace and checks the
// token count against the game's words-per-turn. Pure; no session state is
// touched.
func ParseWords(raw string, want int) ([]string, error) {
	words := strings.Fields(raw)
	if len(words) == 0 {
		return nil, ErrEmptySubmission
	}
	if len(words) != want {
		return nil, ErrWrongWordCount
	}
	return words, nil
}
