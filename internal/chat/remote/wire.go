// internal/chat/remote/wire.go

package remote

import (
	"encoding/json"
	"errors"

	"github.com/jootiya/jootiya-backend/internal/chat"
	"github.com/jootiya/jootiya-backend/internal/messaging"
)

// envelope mirrors utils.Response with the payload left raw
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var errEmptyMessage = errors.New("empty message")

// toChat converts a server row into the client model
func toChat(m *messaging.Message) (chat.Message, error) {
	if m == nil {
		return chat.Message{}, errEmptyMessage
	}

	kind, err := messaging.ParseKind(string(m.Kind))
	if err != nil {
		return chat.Message{}, err
	}

	var content chat.Content
	switch kind {
	case messaging.KindText:
		content = chat.Text{Body: m.Content}
	case messaging.KindImage:
		content = chat.Image{URL: deref(m.MediaURL)}
	case messaging.KindAudio:
		a := chat.Audio{URL: deref(m.MediaURL)}
		if m.MediaDuration != nil {
			a.DurationSeconds = *m.MediaDuration
		}
		content = a
	case messaging.KindFile:
		content = chat.File{URL: deref(m.MediaURL), Name: deref(m.MediaName)}
	}

	return chat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        content,
		ClientMsgID:    deref(m.ClientMsgID),
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}, nil
}

func toChatList(rows []*messaging.Message) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		m, err := toChat(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// sendRequest builds the insert body of a draft
func sendRequest(d chat.Draft) messaging.SendMessageRequest {
	req := messaging.SendMessageRequest{
		Kind:        string(d.Content.Kind()),
		ClientMsgID: d.ClientMsgID,
	}
	chat.Match(d.Content,
		func(t chat.Text) struct{} { req.Content = t.Body; return struct{}{} },
		func(i chat.Image) struct{} { req.MediaURL = i.URL; return struct{}{} },
		func(a chat.Audio) struct{} {
			req.MediaURL = a.URL
			req.MediaDuration = a.DurationSeconds
			return struct{}{}
		},
		func(f chat.File) struct{} {
			req.MediaURL = f.URL
			req.MediaName = f.Name
			return struct{}{}
		},
	)
	return req
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
