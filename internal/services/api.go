// API client for the analysis backend's REST surface
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
)

// DefaultBaseURL is where the backend listens in local development.
const DefaultBaseURL = "http://localhost:8000"

// APIService talks to the backend's REST endpoints. Requests carry the bearer credential when the client was built
// with [NewAuthorizedClient].
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for the analysis backend.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}
}

// NewAuthorizedClient wraps base so every request carries cred as a bearer token.
func NewAuthorizedClient(ctx context.Context, cred shared.Credential, base *http.Client) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, cred.TokenSource())
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Health calls the root endpoint and returns the backend's greeting.
func (a *APIService) Health(ctx context.Context) (string, error) {
	resp, err := a.Get(ctx, "/")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp, "health"); err != nil {
		return "", err
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: health: %v", shared.ErrAPIRequest, err)
	}
	return body.Message, nil
}

// TranscriptionResult is the backend's reply to a transcription request.
type TranscriptionResult struct {
	ID            string
	Title         string
	Transcription string
}

type transcriptionBody struct {
	ID            string `json:"id"`
	MongoID       string `json:"_id"`
	Title         string `json:"title"`
	Transcription string `json:"transcription"`
}

// Transcribe asks the backend to download and transcribe videoURL with model.
func (a *APIService) Transcribe(ctx context.Context, videoURL, model string) (*TranscriptionResult, error) {
	payload, err := json.Marshal(map[string]string{"url": videoURL, "model": model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := a.Post(ctx, "/api/v1/transcribe/process", payload)
	if err != nil {
		return nil, fmt.Errorf("%w: transcribe: %v", shared.ErrAPIRequest, err)
	}
	if err := checkStatus(resp, "transcribe"); err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &fields); err != nil {
		return nil, fmt.Errorf("%w: transcribe: %v", shared.ErrAPIRequest, err)
	}

	// the legacy endpoint nests the record under "transcription"
	record := json.RawMessage(resp.Body)
	if nested := bytes.TrimSpace(fields["transcription"]); len(nested) > 0 && nested[0] == '{' {
		record = nested
	}

	var body transcriptionBody
	if err := json.Unmarshal(record, &body); err != nil {
		return nil, fmt.Errorf("%w: transcribe: %v", shared.ErrAPIRequest, err)
	}

	result := &TranscriptionResult{
		ID:            body.ID,
		Title:         body.Title,
		Transcription: body.Transcription,
	}
	if result.ID == "" {
		result.ID = body.MongoID
	}
	if result.ID == "" {
		return nil, fmt.Errorf("%w: transcribe: response has no id", shared.ErrAPIRequest)
	}
	return result, nil
}

// AnalyzeSentiment runs sentiment analysis over the transcription with id.
func (a *APIService) AnalyzeSentiment(ctx context.Context, transcriptionID string) (models.SentimentDocument, error) {
	resp, err := a.Post(ctx, "/api/v1/sentiment/analyze/"+url.PathEscape(transcriptionID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: analyze: %v", shared.ErrAPIRequest, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", shared.ErrAnalysisNotFound, transcriptionID)
	}
	if err := checkStatus(resp, "analyze"); err != nil {
		return nil, err
	}

	var doc models.SentimentDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("%w: analyze: %v", shared.ErrAPIRequest, err)
	}
	return doc, nil
}

func checkStatus(resp *APIResponse, op string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d", shared.ErrAuth, op, resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return fmt.Errorf("%w: %s: status %d", shared.ErrServiceUnavailable, op, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", shared.ErrAPIRequest, op, resp.StatusCode, detail(resp))
	}
}

// detail extracts FastAPI's {"detail": ...} message when present.
func detail(resp *APIResponse) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(resp.Body))
}
