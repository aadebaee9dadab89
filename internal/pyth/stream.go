package pyth

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

type subscribeMessage struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// Stream feeds a Book from a Hermes websocket.
type Stream struct {
	client   *Client
	book     *Book
	log      *zap.Logger
	onUpdate func(Update)
}

func NewStream(client *Client, book *Book, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{client: client, book: book, log: log}
}

// OnUpdate registers fn to run after every accepted update. Call before Run.
func (s *Stream) OnUpdate(fn func(Update)) {
	s.onUpdate = fn
}

func (s *Stream) Book() *Book {
	return s.book
}

// Run subscribes to every feed of the book and blocks until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	ids := s.book.FeedIDs()
	if len(ids) == 0 {
		return errors.New("no price feeds configured")
	}
	if err := s.client.Subscribe(ctx, subscribeMessage{Type: "subscribe", IDs: ids}); err != nil {
		return err
	}
	s.log.Info("price stream starting", zap.Int("feeds", len(ids)))
	return s.client.Run(ctx, s.handle)
}

func (s *Stream) handle(raw json.RawMessage) {
	update, err := s.book.Parse(raw)
	if err != nil {
		if errors.Is(err, errNotPriceUpdate) {
			var msg wireMessage
			if json.Unmarshal(raw, &msg) == nil && msg.Status == "error" {
				s.log.Warn("price stream error response", zap.String("error", msg.Error))
			}
			return
		}
		s.log.Debug("price update dropped", zap.Error(err))
		return
	}
	if !s.book.Apply(update) {
		return
	}
	if s.onUpdate != nil {
		s.onUpdate(update)
	}
}
