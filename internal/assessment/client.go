// Package assessment talks to the backend that issues per assessment upload
// destinations.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"proctorcap/internal/models"
	"proctorcap/internal/upload"
)

var (
	ErrNotFound     = errors.New("assessment not found")
	ErrUnauthorized = errors.New("assessment backend rejected credentials")
)

// Destinations holds one presigned POST descriptor per media kind. A nil
// entry means the backend has not issued that destination.
type Destinations struct {
	Video  *upload.PresignedPost `json:"video,omitempty"`
	Screen *upload.PresignedPost `json:"screen,omitempty"`
	Image  *upload.PresignedPost `json:"image,omitempty"`
}

// For returns the destination for kind, or nil.
func (d Destinations) For(kind models.MediaKind) *upload.PresignedPost {
	var post *upload.PresignedPost
	switch kind {
	case models.KindVideo:
		post = d.Video
	case models.KindScreen:
		post = d.Screen
	case models.KindImage:
		post = d.Image
	}
	if !post.Valid() {
		return nil
	}
	return post
}

func (d Destinations) Any() bool {
	return d.Video.Valid() || d.Screen.Valid() || d.Image.Valid()
}

type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}

	return &Client{
		http: client,
		log:  log.With().Str("component", "assessment").Logger(),
	}
}

// FetchDestinations asks the backend for the upload destinations of one
// candidate's assessment.
func (c *Client) FetchDestinations(ctx context.Context, assessmentID, candidateID string) (Destinations, error) {
	var result Destinations
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("assessmentID", assessmentID).
		SetQueryParam("candidate_id", candidateID).
		SetResult(&result).
		Get("/assessments/{assessmentID}/upload-config")
	if err != nil {
		return Destinations{}, fmt.Errorf("failed to query upload config: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return Destinations{}, fmt.Errorf("%w: %s", ErrNotFound, assessmentID)
	case http.StatusUnauthorized, http.StatusForbidden:
		return Destinations{}, ErrUnauthorized
	}
	if resp.IsError() {
		return Destinations{}, fmt.Errorf("upload config error (status %d): %s", resp.StatusCode(), resp.String())
	}

	return result, nil
}

// WaitForDestinations polls until the backend has issued at least one
// destination. Credential rejections stop the poll; other failures are
// retried on the next tick.
func (c *Client) WaitForDestinations(ctx context.Context, assessmentID, candidateID string, interval time.Duration) (Destinations, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		dest, err := c.FetchDestinations(ctx, assessmentID, candidateID)
		switch {
		case err == nil && dest.Any():
			return dest, nil
		case errors.Is(err, ErrUnauthorized):
			return Destinations{}, err
		case err != nil:
			c.log.Warn().Err(err).Str("assessment_id", assessmentID).Msg("upload config not available yet")
		default:
			c.log.Debug().Str("assessment_id", assessmentID).Msg("no destinations issued yet")
		}

		select {
		case <-ctx.Done():
			return Destinations{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
