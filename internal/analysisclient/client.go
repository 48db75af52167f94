// Package analysisclient calls the external Analysis Service over multipart HTTP.
package analysisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	analyzePath     = "/api/analysis/"
	maxResponseSize = 10 << 20
	defaultTimeout  = 5 * time.Minute
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("analysis service unavailable")

// UpstreamError is a non-2xx reply from the service.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string { return e.Detail }

// Client talks to one Analysis Service base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New constructs a Client. Per-call deadlines come from ctx; timeout caps the transport.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "analysis-service",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Client errors are the caller's fault, not the service's.
			IsSuccessful: func(err error) bool {
				var upstream *UpstreamError
				if errors.As(err, &upstream) {
					return upstream.Status < 500
				}
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Analyze posts the résumé and job URL and decodes the result.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.analyze(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, ErrUnavailable
		}
		return Result{}, err
	}
	return out.(Result), nil
}

func (c *Client) analyze(ctx context.Context, req Request) (Result, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode analysis form: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, body)
	if err != nil {
		return Result{}, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("analysis service request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{}, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Detail: errorDetail(resp.StatusCode, raw)}
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, fmt.Errorf("decode analysis response: %w", err)
	}
	result.Raw = raw
	return result, nil
}

func encodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := req.FileName
	if strings.TrimSpace(name) == "" {
		name = "resume"
	}
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.File); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("job_posting_url", req.JobURL); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("anonymize_pii", strconv.FormatBool(req.Anonymize)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorDetail prefers the body's "error", then "detail", then a generic message.
func errorDetail(status int, raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"error", "detail"} {
			v, ok := body[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err == nil && strings.TrimSpace(s) != "" {
				return s
			}
			if len(v) > 0 && string(v) != "null" {
				return string(v)
			}
		}
	}
	return fmt.Sprintf("analysis service error: %d", status)
}
