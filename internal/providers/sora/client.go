package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("sora: api key is required")

// RequestError reports a non-success HTTP outcome from the generation API.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("sora: %s (status %d)", e.Message, e.StatusCode)
}

// Options configures the video generation API client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the remote video generation API. It is
// stateless between calls; the credential is injected, never read from
// ambient state.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ReferenceImage is an optional input image for a submission. When Data is
// present the image travels as a multipart file part; when only URL is set it
// travels as a JSON field.
type ReferenceImage struct {
	Data     []byte
	Filename string
	URL      string
}

// SubmitRequest captures the inputs for one generation job.
type SubmitRequest struct {
	Prompt         string
	Model          domain.VideoModel
	Resolution     string
	Seconds        int
	ReferenceImage *ReferenceImage
}

// RemoteJob is the normalized result of a submission.
type RemoteJob struct {
	ID     string
	Status string
	Raw    json.RawMessage
}

// RemoteError carries the error object attached to a remote status payload.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RemoteStatus is the normalized result of a status fetch. Status is the
// remote API's own vocabulary, which is looser than the local state machine;
// classification happens in the reconciliation engine.
type RemoteStatus struct {
	Status   string
	Progress int
	Error    *RemoteError
	Raw      json.RawMessage
}

// ProbeResult reports remote reachability. Probe failures are captured here,
// never returned as errors.
type ProbeResult struct {
	OK      bool
	Message string
}

type remoteJobPayload struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	Progress int          `json:"progress"`
	Error    *RemoteError `json:"error"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Submit creates a remote generation job and returns its identifier and
// initial status. Resolution-for-model validation here is advisory; the
// remote API is the final authority and its rejection is surfaced verbatim.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*RemoteJob, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	if err := domain.ValidateGeneration(req.Model, req.Resolution, req.Seconds); err != nil {
		return nil, err
	}

	var httpReq *http.Request
	var err error
	if req.ReferenceImage != nil && len(req.ReferenceImage.Data) > 0 {
		httpReq, err = c.buildMultipartSubmit(ctx, req)
	} else {
		httpReq, err = c.buildJSONSubmit(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var payload remoteJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("sora: decode submit response: %w", err)
	}
	if payload.ID == "" {
		return nil, errors.New("sora: submit response missing job id")
	}
	c.logger.Debug().
		Str("remote_job_id", payload.ID).
		Str("status", payload.Status).
		Str("model", string(req.Model)).
		Msg("sora: submitted generation job")
	return &RemoteJob{ID: payload.ID, Status: payload.Status, Raw: raw}, nil
}

func (c *Client) buildJSONSubmit(ctx context.Context, req SubmitRequest) (*http.Request, error) {
	body := map[string]any{
		"model":   string(req.Model),
		"prompt":  req.Prompt,
		"size":    req.Resolution,
		"seconds": strconv.Itoa(req.Seconds),
	}
	if req.ReferenceImage != nil && req.ReferenceImage.URL != "" {
		body["input_reference"] = req.ReferenceImage.URL
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sora: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("sora: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return httpReq, nil
}

func (c *Client) buildMultipartSubmit(ctx context.Context, req SubmitRequest) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model":   string(req.Model),
		"prompt":  req.Prompt,
		"size":    req.Resolution,
		"seconds": strconv.Itoa(req.Seconds),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("sora: write field %s: %w", name, err)
		}
	}
	filename := req.ReferenceImage.Filename
	if filename == "" {
		filename = "reference"
	}
	part, err := writer.CreateFormFile("input_reference", filename)
	if err != nil {
		return nil, fmt.Errorf("sora: create file part: %w", err)
	}
	if _, err := part.Write(req.ReferenceImage.Data); err != nil {
		return nil, fmt.Errorf("sora: write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sora: finalize multipart body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", &buf)
	if err != nil {
		return nil, fmt.Errorf("sora: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return httpReq, nil
}

// FetchStatus returns the latest remote view of a job.
func (c *Client) FetchStatus(ctx context.Context, remoteJobID string) (*RemoteStatus, error) {
	if strings.TrimSpace(remoteJobID) == "" {
		return nil, fmt.Errorf("%w: remote job id is required", domain.ErrInvalidRequest)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+remoteJobID, nil)
	if err != nil {
		return nil, fmt.Errorf("sora: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	var payload remoteJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("sora: decode status response: %w", err)
	}
	return &RemoteStatus{
		Status:   payload.Status,
		Progress: payload.Progress,
		Error:    payload.Error,
		Raw:      raw,
	}, nil
}

// DownloadArtifact fetches the finished binary for a completed job. Returns
// the payload and its content type.
func (c *Client) DownloadArtifact(ctx context.Context, remoteJobID string) ([]byte, string, error) {
	if strings.TrimSpace(remoteJobID) == "" {
		return nil, "", fmt.Errorf("%w: remote job id is required", domain.ErrInvalidRequest)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+remoteJobID+"/content", nil)
	if err != nil {
		return nil, "", fmt.Errorf("sora: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("sora: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, "", requestErrorFromBody(resp.StatusCode, raw)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("sora: read artifact: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}

// ProbeConnectivity performs a cheap authenticated request against an
// unrelated endpoint. It never returns an error; failures are folded into the
// result so callers can present them directly.
func (c *Client) ProbeConnectivity(ctx context.Context) ProbeResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return ProbeResult{OK: false, Message: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ProbeResult{OK: false, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		reqErr := requestErrorFromBody(resp.StatusCode, raw)
		return ProbeResult{OK: false, Message: reqErr.Message}
	}
	return ProbeResult{OK: true, Message: "connected"}
}

// do executes a request and returns the raw body, translating non-success
// statuses into *RequestError.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sora: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sora: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, requestErrorFromBody(resp.StatusCode, raw)
	}
	return raw, nil
}

func requestErrorFromBody(statusCode int, raw []byte) *RequestError {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			return &RequestError{StatusCode: statusCode, Message: msg}
		}
		if msg := strings.TrimSpace(envelope.Message); msg != "" {
			return &RequestError{StatusCode: statusCode, Message: msg}
		}
	}
	return &RequestError{StatusCode: statusCode, Message: fmt.Sprintf("request failed with status %d", statusCode)}
}
