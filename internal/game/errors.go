package game

import (
	"errors"
)

// Game-rule violations. All of these are expected, user-recoverable
// outcomes and are surfaced back to the acting participant only.
var (
	ErrWrongWordCount  = errors.New("wrong word count")
	ErrEmptySubmission = errors.New("empty submission")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrSessionFull     = errors.New("session full")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrAlreadyInGame   = errors.New("already in a game")
	ErrNoOpenSession   = errors.New("no open session")
	ErrSessionFinished = errors.New("session finished")
	ErrNotInGame       = errors.New("not in a game")
)

// Kind maps a game-rule violation to its stable wire name. It returns ""
// for anything else (storage failures and the like), which callers use to
// tell user errors apart from system errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrWrongWordCount):
		return "WrongWordCount"
	case errors.Is(err, ErrEmptySubmission):
		return "EmptySubmission"
	case errors.Is(err, ErrNotYourTurn):
		return "NotYourTurn"
	case errors.Is(err, ErrSessionFull):
		return "SessionFull"
	case errors.Is(err, ErrAlreadyJoined):
		return "AlreadyJoined"
	case errors.Is(err, ErrAlreadyInGame):
		return "AlreadyInGame"
	case errors.Is(err, ErrNoOpenSession):
		return "NoOpenSession"
	case errors.Is(err, ErrSessionFinished):
		return "SessionFinished"
	case errors.Is(err, ErrNotInGame):
		return "NotInGame"
	}
	return ""
}
