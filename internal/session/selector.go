package session

import (
	"unicode/utf16"

	"github.com/pensum-app/pensum/internal/card"
)

// SelectNext picks the card to present from a snapshot. It returns false
// when both queues are empty.
//
// With both queues non-empty the choice between the heads is a pure function
// of their keys, so repeated calls on an unchanged snapshot agree. Roughly one
// pair in four goes to the new card.
func SelectNext(s *card.TopicSnapshot) (card.Flashcard, bool) {
	if s == nil {
		return card.Flashcard{}, false
	}

	switch {
	case len(s.New) == 0 && len(s.Review) == 0:
		return card.Flashcard{}, false
	case len(s.Review) == 0:
		return s.New[0], true
	case len(s.New) == 0:
		return s.Review[0], true
	}

	newCard, reviewCard := s.New[0], s.Review[0]
	if mixHash(newCard.Key()+reviewCard.Key())%4 == 0 {
		return newCard, true
	}
	return reviewCard, true
}

// mixHash is the 31-multiplier polynomial string hash over UTF-16 code
// units with int32 wraparound. Existing sessions depend on its exact output.
func mixHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}
