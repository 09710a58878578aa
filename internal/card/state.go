package card

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the learning stage of a card. Values match the stored integers.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

var stateNames = [...]string{New: "new", Learning: "learning", Review: "review", Relearning: "relearning"}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	return s >= New && s <= Relearning
}

// String returns the lowercase state name, or "State(n)" for unknown values.
func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Rating is the grade a user gives a card. Manual ratings are not accepted.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// Valid reports whether r is Again, Hard, Good or Easy.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.Valid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts a rating name ("good") or its number ("3").
func ParseRating(s string) (Rating, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		r := Rating(n)
		if r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("rating out of range: %d (want 1-4)", n)
	}
	for r := Again; r <= Easy; r++ {
		if ratingNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rating: %q", s)
}
