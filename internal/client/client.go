// Package client is a typed HTTP client for the movies API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the API answers 404.
	ErrNotFound = errors.New("client: not found")
	// ErrBadRequest is returned when the API answers 400.
	ErrBadRequest = errors.New("client: bad request")
)

// Movie is the wire form of a movie.
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Genre       string  `json:"genre"`
	ReleaseDate *string `json:"releaseDate,omitempty"`
}

// StatusError reports an unexpected HTTP status together with the API's
// error payload when one was returned.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("client: api returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 400 and 404 onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	}
	return nil
}

// HTTPClient talks to the /movies endpoints over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *log.Logger
}

// New constructs a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// List fetches every movie.
func (c *HTTPClient) List(ctx context.Context) ([]Movie, error) {
	var movies []Movie
	if err := c.do(ctx, http.MethodGet, "/movies", nil, http.StatusOK, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// Get fetches one movie by id.
func (c *HTTPClient) Get(ctx context.Context, id int64) (Movie, error) {
	var movie Movie
	if err := c.do(ctx, http.MethodGet, moviePath(id), nil, http.StatusOK, &movie); err != nil {
		return Movie{}, err
	}
	return movie, nil
}

// Create submits movies as one batch and returns them with assigned ids.
func (c *HTTPClient) Create(ctx context.Context, movies []Movie) ([]Movie, error) {
	var created []Movie
	if err := c.do(ctx, http.MethodPost, "/movies", movies, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces the stored movie with the given one.
func (c *HTTPClient) Update(ctx context.Context, movie Movie) error {
	return c.do(ctx, http.MethodPut, moviePath(movie.ID), movie, http.StatusNoContent, nil)
}

// Delete removes a movie by id.
func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, moviePath(id), nil, http.StatusNoContent, nil)
}

func moviePath(id int64) string {
	return "/movies/" + strconv.FormatInt(id, 10)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, want int, dst interface{}) error {
	endpoint := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			statusErr.Code = payload.Code
			statusErr.Message = payload.Message
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Printf("client: unexpected status %d for %s %s", resp.StatusCode, method, path)
		}
		return statusErr
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
