// internal/chat/attachments.go

package chat

import (
	"context"
	"errors"
)

// Attachment is a local blob picked or recorded by the user
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
	// PreviewURL is a local URL shown while the upload runs
	PreviewURL string
}

var errEmptyAttachment = errors.New("attachment is empty")

// SendImage compresses, uploads and sends an image
func (s *Sender) SendImage(ctx context.Context, a Attachment) (*Message, error) {
	return s.sendAttachment(ctx, a, Image{URL: a.PreviewURL}, true,
		func(url string) Content { return Image{URL: url} })
}

// SendAudio uploads and sends a voice recording
func (s *Sender) SendAudio(ctx context.Context, a Attachment, durationSeconds int) (*Message, error) {
	return s.sendAttachment(ctx, a, Audio{URL: a.PreviewURL, DurationSeconds: durationSeconds}, false,
		func(url string) Content { return Audio{URL: url, DurationSeconds: durationSeconds} })
}

// SendFile uploads and sends a document
func (s *Sender) SendFile(ctx context.Context, a Attachment) (*Message, error) {
	return s.sendAttachment(ctx, a, File{URL: a.PreviewURL, Name: a.Name}, false,
		func(url string) Content { return File{URL: url, Name: a.Name} })
}

func (s *Sender) sendAttachment(ctx context.Context, a Attachment, preview Content, compress bool,
	final func(url string) Content) (*Message, error) {
	if len(a.Data) == 0 {
		return nil, &UploadError{Name: a.Name, Err: errEmptyAttachment}
	}

	placeholder := s.begin(preview)

	data, contentType := a.Data, a.ContentType
	if compress {
		out, ct, err := s.compressor.Compress(data, contentType)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", a.Name).Msg("Image not compressed, uploading original")
		} else {
			data, contentType = out, ct
		}
	}

	url, err := call(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.objects.Upload(ctx, a.Name, contentType, data)
	})
	if err != nil {
		s.store.Discard(placeholder.ID, placeholder.ClientMsgID)
		s.logger.Warn().Err(err).Str("name", a.Name).Msg("Upload failed")
		s.notifier.Notify(Notice{Text: "The attachment could not be uploaded.", Err: err})
		return nil, &UploadError{Name: a.Name, Err: err}
	}

	confirmed, err := s.persist(ctx, placeholder, final(url))
	if err != nil {
		cleanupErr := s.deleteOrphan(ctx, url)
		s.notifier.Notify(Notice{Text: "The attachment could not be sent.", Err: err})
		return nil, &OrphanWriteError{URL: url, Err: err, CleanupErr: cleanupErr}
	}
	return &confirmed, nil
}

// deleteOrphan removes an object no row references. Failures are only logged.
func (s *Sender) deleteOrphan(ctx context.Context, url string) error {
	// The caller's context may already be done; cleanup gets its own deadline
	cctx := context.WithoutCancel(ctx)
	err := callErr(cctx, s.timeout, func(ctx context.Context) error {
		return s.objects.Delete(ctx, url)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Failed to delete orphaned upload")
	}
	return err
}
