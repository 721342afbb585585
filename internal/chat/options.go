// internal/chat/options.go

package chat

import (
	"time"

	"github.com/rs/zerolog"
)

const DefaultOperationTimeout = 15 * time.Second

// Options tune a chat view and its components. Zero values get defaults.
type Options struct {
	OperationTimeout time.Duration
	Compressor       Compressor
	Logger           zerolog.Logger
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if o.Compressor.MaxDimension <= 0 {
		o.Compressor.MaxDimension = DefaultMaxDimension
	}
	if o.Compressor.TargetBytes <= 0 {
		o.Compressor.TargetBytes = DefaultTargetBytes
	}
	if o.Compressor.MaxPixels <= 0 {
		o.Compressor.MaxPixels = DefaultMaxPixels
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
