// internal/messaging/storage.go

package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// StorageService keeps chat attachments and hands back public URLs
type StorageService interface {
	Upload(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error)
	// Delete removes an object previously uploaded by userID, addressed by its public URL
	Delete(ctx context.Context, userID, objectURL string) error
}

var allowedContentTypes = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"audio/mpeg":         ".mp3",
	"audio/ogg":          ".ogg",
	"audio/wav":          ".wav",
	"audio/webm":         ".webm",
	"audio/mp4":          ".m4a",
	"audio/aac":          ".aac",
	"application/pdf":    ".pdf",
	"application/zip":    ".zip",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain": ".txt",
}

// browsers render these as documents, whatever type the client declared
var activeContentTypes = map[string]bool{
	"text/html": true,
	"text/xml":  true,
}

// readUpload buffers the body up to maxSize and settles its content type.
// The body is always sniffed: a recognised image type overrides the declared
// one, and markup is refused outright.
func readUpload(body io.Reader, contentType string, maxSize int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	if activeContentTypes[sniffed] {
		return nil, "", fmt.Errorf("%w: content looks like %s", ErrFileTypeNotAllowed, sniffed)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = sniffed
	}
	if strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(sniffed, "image/") {
		// every allowed image type is recognised by the sniffer
		mediaType = sniffed
	}
	if _, ok := allowedContentTypes[mediaType]; !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, mediaType)
	}
	return data, mediaType, nil
}

// objectKey lays objects out as chat/<user>/YYYY/MM/DD/<uuid><ext>. The
// extension follows the settled content type, never the client's filename.
func objectKey(userID, contentType string, now time.Time) string {
	return path.Join("chat", userID, now.UTC().Format("2006/01/02"), uuid.New().String()+allowedContentTypes[contentType])
}

// keyFromURL maps a public URL back to an object key owned by userID
func keyFromURL(baseURL, objectURL, userID string) (string, error) {
	prefix := strings.TrimSuffix(baseURL, "/") + "/"
	if !strings.HasPrefix(objectURL, prefix) {
		return "", ErrForeignObject
	}
	key := path.Clean(strings.TrimPrefix(objectURL, prefix))
	if !strings.HasPrefix(key, "chat/"+userID+"/") {
		return "", ErrForeignObject
	}
	return key, nil
}

type s3Storage struct {
	client      s3iface.S3API
	bucketName  string
	cdnURL      string
	maxFileSize int64
}

// NewS3StorageService stores attachments in an S3 bucket served through cdnURL
func NewS3StorageService(awsSession *session.Session, bucketName, cdnURL string, maxFileSize int64) StorageService {
	return &s3Storage{
		client:      s3.New(awsSession),
		bucketName:  bucketName,
		cdnURL:      strings.TrimSuffix(cdnURL, "/"),
		maxFileSize: maxFileSize,
	}
}

func (s *s3Storage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	data, mediaType, err := readUpload(body, contentType, s.maxFileSize)
	if err != nil {
		uploadsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}

	key := objectKey(userID, mediaType, time.Now())
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mediaType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           aws.String("public-read"),
		Metadata: map[string]*string{
			"uploaded-by": aws.String(userID),
			"file-name":   aws.String(filepath.Base(filename)),
		},
	})
	uploadsTotal.WithLabelValues("upload", outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:         s.cdnURL + "/" + key,
		ContentType: mediaType,
		Size:        int64(len(data)),
	}, nil
}

func (s *s3Storage) Delete(ctx context.Context, userID, objectURL string) error {
	key, err := keyFromURL(s.cdnURL, objectURL, userID)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	uploadsTotal.WithLabelValues("delete", outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

type localStorage struct {
	dir         string
	baseURL     string
	maxFileSize int64
}

// NewLocalStorageService writes attachments under dir; the API serves them at baseURL
func NewLocalStorageService(dir, baseURL string, maxFileSize int64) StorageService {
	return &localStorage{
		dir:         dir,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxFileSize: maxFileSize,
	}
}

func (s *localStorage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	data, mediaType, err := readUpload(body, contentType, s.maxFileSize)
	if err != nil {
		uploadsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}

	key := objectKey(userID, mediaType, time.Now())
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		uploadsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	err = os.WriteFile(target, data, 0o644)
	uploadsTotal.WithLabelValues("upload", outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	return &UploadResult{
		URL:         s.baseURL + "/" + key,
		ContentType: mediaType,
		Size:        int64(len(data)),
	}, nil
}

func (s *localStorage) Delete(ctx context.Context, userID, objectURL string) error {
	key, err := keyFromURL(s.baseURL, objectURL, userID)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	uploadsTotal.WithLabelValues("delete", outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
