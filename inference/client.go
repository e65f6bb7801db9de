// Package inference talks to a locally hosted Ollama-compatible inference service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Availability is the outcome of an availability check.
type Availability int

const (
	// Offline means the service could not be reached or answered with an error.
	Offline Availability = iota
	// Ready means the service answered and lists the configured model.
	Ready
	// ModelNotFound means the service answered but does not list the configured model.
	ModelNotFound
)

func (a Availability) String() string {
	switch a {
	case Ready:
		return "ready"
	case ModelNotFound:
		return "model_not_found"
	default:
		return "offline"
	}
}

// Options are the sampling parameters sent with every generation request.
type Options struct {
	Temperature   float64  `json:"temperature"`
	NumPredict    int      `json:"num_predict"`
	TopK          int      `json:"top_k"`
	TopP          float64  `json:"top_p"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Stop          []string `json:"stop"`
}

// DefaultOptions returns the fixed sampling parameters for single-line completion.
// The stop sequences include the prompt's instruction delimiters.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.1,
		NumPredict:    64,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		Stop:          []string{"\n", "[/INST]", "[INST]"},
	}
}

// Client performs the availability check and generation calls.
// Neither call is retried.
type Client struct {
	client  *http.Client
	options Options
}

// NewClient creates a client with a 30 second request timeout.
func NewClient() *Client {
	return NewClientWithHTTP(&http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTP creates a client using hc for transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{client: hc, options: DefaultOptions()}
}

type tagsResponse struct {
	Models []tagsModel `json:"models"`
}

type tagsModel struct {
	Name string `json:"name"`
}

// CheckAvailability lists the service's models and reports whether cfg.Model is among them.
// The returned error explains an Offline result and is nil otherwise.
func (c *Client) CheckAvailability(ctx context.Context, cfg ghostline.ServiceConfig) (Availability, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint(cfg.Host, "/api/tags"), nil)
	if err != nil {
		return Offline, err
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return Offline, &ServiceError{StatusCode: http.StatusOK, Status: "200 OK", Body: "unreadable model list: " + err.Error()}
	}

	for _, m := range tags.Models {
		if m.Name == cfg.Model {
			return Ready, nil
		}
	}
	return ModelNotFound, nil
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate sends prompt to cfg.Model in non-streaming mode and returns the raw completion text.
func (c *Client) Generate(ctx context.Context, cfg ghostline.ServiceConfig, prompt string) (string, error) {
	data, err := json.Marshal(generateRequest{
		Model:   cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, endpoint(cfg.Host, "/api/generate"), data)
	if err != nil {
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Join(ErrMalformedResponse, err)
	}
	if result.Error != "" {
		return "", &ServiceError{StatusCode: http.StatusOK, Status: "200 OK", Body: result.Error}
	}
	return result.Response, nil
}

// do performs one HTTP exchange and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &TransportError{Op: method, URL: url, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func endpoint(host, path string) string {
	return strings.TrimRight(host, "/") + path
}
