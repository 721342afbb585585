package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiNotifier_TriesEveryChannel(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("smtp down")}
	ok := &recordingNotifier{}
	multi := NewMultiNotifier(zerolog.Nop(), failing, NewLogNotifier(zerolog.Nop()), ok)

	notice := &OfflineNotice{Recipient: &Contact{ID: sellerID}, SenderName: "Awa", Preview: "Bonjour"}
	err := multi.Notify(context.Background(), notice)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, failing.sent(), 1)
	assert.Len(t, ok.sent(), 1)
	assert.Equal(t, 3, multi.Len())
}

func TestOfflineNoticeText(t *testing.T) {
	notice := &OfflineNotice{SenderName: "Awa", AdTitle: "Vélo", Preview: "Toujours dispo ?"}
	assert.Equal(t, "Awa · Vélo", notice.title())

	subject, body := emailContent(notice)
	assert.Equal(t, "New message from Awa", subject)
	assert.Contains(t, body, `About "Vélo"`)
	assert.Contains(t, body, "Toujours dispo ?")

	notice.AdTitle = ""
	assert.Equal(t, "Awa", notice.title())
}

func TestChannelNotifiersSkipMissingContact(t *testing.T) {
	notice := &OfflineNotice{Recipient: &Contact{ID: sellerID}}

	assert.NoError(t, NewSendGridNotifier("key", "from@example.com").Notify(context.Background(), notice))
	assert.NoError(t, NewSMTPNotifier("smtp.example.com", 587, "u", "p", "from@example.com").Notify(context.Background(), notice))
	assert.NoError(t, NewTwilioNotifier("sid", "token", "+100").Notify(context.Background(), notice))
}

func TestPreviewFor(t *testing.T) {
	long := make([]rune, 130)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{"text", &Message{Kind: KindText, Content: "Bonjour"}, "Bonjour"},
		{"long text", &Message{Kind: KindText, Content: string(long)}, string(long[:120]) + "…"},
		{"image", &Message{Kind: KindImage}, "📷 Photo"},
		{"audio", &Message{Kind: KindAudio}, "🎤 Voice message"},
		{"file without name", &Message{Kind: KindFile}, "📎 File"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreviewFor(tt.msg))
		})
	}
}
