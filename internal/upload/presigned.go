package upload

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"proctorcap/internal/metrics"
	"proctorcap/internal/models"
)

const filenamePlaceholder = "${filename}"

// PresignedPostUploader sends each object as a multipart form to a presigned
// POST destination. Credentials are short-lived, so each object gets a
// single attempt.
type PresignedPostUploader struct {
	post   PresignedPost
	client *resty.Client
	now    func() time.Time
	log    zerolog.Logger
}

func NewPresignedPostUploader(post PresignedPost, client *resty.Client, log zerolog.Logger) *PresignedPostUploader {
	if client == nil {
		client = resty.New().SetTimeout(2 * time.Minute)
	}
	return &PresignedPostUploader{
		post:   post,
		client: client,
		now:    time.Now,
		log:    log.With().Str("component", "presigned-uploader").Logger(),
	}
}

func (u *PresignedPostUploader) UploadChunk(ctx context.Context, chunk models.Chunk, progress ProgressFunc) models.UploadResult {
	contentType := chunk.Metadata.MimeType
	if contentType == "" {
		contentType = "video/webm"
	}
	// the end of the span is the moment the chunk is handed over
	filename := ChunkFilename(chunk.Metadata, u.now())
	return u.send(ctx, chunk.Metadata.Kind, filename, contentType, chunk.Data, progress)
}

func (u *PresignedPostUploader) UploadImage(ctx context.Context, image models.Image, progress ProgressFunc) models.UploadResult {
	filename := ImageFilename(image.Metadata, ExtensionFor(image.Metadata.Format))
	return u.send(ctx, models.KindImage, filename, image.Metadata.Format, image.Data, progress)
}

func (u *PresignedPostUploader) send(ctx context.Context, kind models.MediaKind, filename, contentType string, data []byte, progress ProgressFunc) models.UploadResult {
	if !u.post.Valid() {
		return models.FailedUpload(ErrNotConfigured, 0)
	}

	report(progress, 0)
	body, formType, key, err := buildForm(u.post.Fields, filename, contentType, data)
	if err != nil {
		return models.FailedUpload(err, 0)
	}
	report(progress, 50)

	metrics.RecordAttempt(string(kind))
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", formType).
		SetBody(body).
		Post(u.post.URL)
	if err != nil {
		u.log.Error().Err(err).Str("filename", filename).Msg("presigned post failed")
		return models.FailedUpload(fmt.Errorf("presigned post: %w", err), 1)
	}
	if !resp.IsSuccess() {
		err := fmt.Errorf("presigned post: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 256))
		u.log.Error().Err(err).Str("filename", filename).Msg("presigned post rejected")
		return models.FailedUpload(err, 1)
	}

	report(progress, 100)
	url := strings.TrimRight(u.post.URL, "/") + "/" + key
	u.log.Debug().Str("key", key).Int("size", len(data)).Msg("upload complete")
	return models.Uploaded(key, url, 1)
}

// buildForm writes the presigned fields followed by the file, which must be
// the last part of the form. It returns the body, its content type and the
// resolved object key.
func buildForm(fields map[string]string, filename, contentType string, data []byte) ([]byte, string, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	key := filename
	for _, name := range names {
		value := fields[name]
		if name == "key" {
			value = strings.ReplaceAll(value, filenamePlaceholder, filename)
			key = value
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, "", "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", "", fmt.Errorf("close form: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), key, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
