// internal/chat/notify.go

package chat

import "github.com/rs/zerolog"

// Notice is a transient, user-facing message (a toast)
type Notice struct {
	Text string
	Err  error
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the log; useful without a UI
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	l.Logger.Warn().Err(n.Err).Msg(n.Text)
}
