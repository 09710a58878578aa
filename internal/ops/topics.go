package ops

import (
	"context"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/store"
)

// ListTopicsOutput contains the result of the ListTopics operation.
type ListTopicsOutput struct {
	Topics []card.Topic `json:"topics"`
}

// ListTopics returns every topic ordered by name.
func ListTopics(ctx context.Context, st store.Reader) (*ListTopicsOutput, error) {
	topics, err := st.ListTopics(ctx)
	if err != nil {
		return nil, errors.NewStore("list topics", err)
	}
	if topics == nil {
		topics = []card.Topic{}
	}
	return &ListTopicsOutput{Topics: topics}, nil
}
