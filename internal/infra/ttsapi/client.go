// Package ttsapi provides a client for the Open Mobile TTS server.
package ttsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/mobiletts/internal/domain/audio"
)

// Server defaults applied when a request leaves voice or speed unset.
const (
	DefaultVoice = "af_heart"
	DefaultSpeed = 1.0
)

// ErrNotAuthenticated is returned when an authenticated endpoint is called without a token.
var ErrNotAuthenticated = errors.New("not authenticated")

// Config represents TTS client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Voice represents a voice offered by the server.
type Voice struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Document represents text extracted from an uploaded document.
type Document struct {
	Filename   string `json:"filename"`
	Text       string `json:"text"`
	ChunkCount int    `json:"chunk_count"`
}

// Health represents the server health response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// APIError represents a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tts server error %d", e.StatusCode)
	}
	return fmt.Sprintf("tts server error %d: %s", e.StatusCode, e.Detail)
}

// Unauthorized reports whether the server rejected the token.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// tokenSource is an oauth2.TokenSource whose bearer token can be swapped at runtime.
type tokenSource struct {
	mu    sync.RWMutex
	token string
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *tokenSource) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Client is a TTS server API client.
type Client struct {
	baseURL    string
	tokens     *tokenSource
	httpClient *http.Client // attaches the bearer token
	anonClient *http.Client // unauthenticated endpoints
}

// New creates a new TTS client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("tts server URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid tts server URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	tokens := &tokenSource{token: cfg.Token}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: tokens,
				Base:   http.DefaultTransport,
			},
		},
		anonClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SetToken replaces the bearer token. An empty token makes authenticated
// calls fail with ErrNotAuthenticated.
func (c *Client) SetToken(token string) {
	c.tokens.set(token)
}

// Generate synthesizes text and returns the decoded stream.
func (c *Client) Generate(ctx context.Context, text, voice string, speed float64) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, errors.New("text is required")
	}

	params := speechParams(voice, speed)
	params.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tts/stream?"+params.Encode(), nil)
	if err != nil {
		return audio.Clip{}, errors.Wrap(err, "failed to create request")
	}

	start := time.Now()
	clip, err := c.doStream(req)
	if err != nil {
		return audio.Clip{}, err
	}
	zlog.Debug().Msgf("ttsapi: generated speech: chars=%d chunks=%d bytes=%d elapsed=%s",
		len(text), len(clip.Segments), len(clip.Data), time.Since(start))
	return clip, nil
}

// GenerateDocument uploads a document and returns the synthesized stream of its text.
func (c *Client) GenerateDocument(ctx context.Context, filename string, r io.Reader, voice string, speed float64) (audio.Clip, error) {
	body, contentType, err := multipartFile(filename, r)
	if err != nil {
		return audio.Clip{}, err
	}

	params := speechParams(voice, speed)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/stream?"+params.Encode(), body)
	if err != nil {
		return audio.Clip{}, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)

	clip, err := c.doStream(req)
	if err != nil {
		return audio.Clip{}, err
	}
	zlog.Debug().Msgf("ttsapi: generated document speech: file=%s chunks=%d", filename, len(clip.Segments))
	return clip, nil
}

// UploadDocument uploads a document and returns its extracted text.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	body, contentType, err := multipartFile(filename, r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)

	var doc Document
	if err := c.doJSON(c.httpClient, req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Voices lists the voices offered by the server.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/voices", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	var voices []Voice
	if err := c.doJSON(c.httpClient, req, &voices); err != nil {
		return nil, err
	}
	return voices, nil
}

// Health checks server liveness. It does not require a token.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	var h Health
	if err := c.doJSON(c.anonClient, req, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) doStream(req *http.Request) (audio.Clip, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, wrapTransport(err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return audio.Clip{}, err
	}
	return DecodeStream(resp.Body)
}

func (c *Client) doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return wrapTransport(err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

// checkResponse converts non-2xx responses into *APIError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
}

// parseDetail extracts the "detail" field of an error body. Validation errors
// carry a structured detail, which is returned as raw JSON.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}

// wrapTransport unwraps token source failures so callers can match ErrNotAuthenticated.
func wrapTransport(err error) error {
	if errors.Is(err, ErrNotAuthenticated) {
		return ErrNotAuthenticated
	}
	return errors.Wrap(err, "failed to send request")
}

func speechParams(voice string, speed float64) url.Values {
	if voice == "" {
		voice = DefaultVoice
	}
	if speed <= 0 {
		speed = DefaultSpeed
	}
	params := url.Values{}
	params.Set("voice", voice)
	params.Set("speed", strconv.FormatFloat(speed, 'f', -1, 64))
	return params
}

func multipartFile(filename string, r io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", errors.Wrap(err, "failed to read document")
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to finalize form")
	}
	return &buf, mw.FormDataContentType(), nil
}
