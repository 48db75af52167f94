package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageVersion is the payload layout written by this build. Version 0
// is accepted as the unversioned first layout.
const MessageVersion = 1

var (
	ErrEmptyMessage       = errors.New("queue: empty message body")
	ErrMalformedMessage   = errors.New("queue: malformed message")
	ErrUnsupportedVersion = errors.New("queue: unsupported message version")
)

// Message asks a worker to execute one job.
type Message struct {
	JobID      string    `json:"jobId"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Version    int       `json:"version"`
}

// Encode serialises m for the queue body.
func Encode(m Message) ([]byte, error) {
	if strings.TrimSpace(m.JobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrMalformedMessage)
	}
	return json.Marshal(m)
}

// Decode parses and validates a queue body. Every returned error wraps one
// of the sentinels above, so callers can tell poison messages apart.
func Decode(body []byte) (Message, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Message{}, ErrEmptyMessage
	}
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Version < 0 || m.Version > MessageVersion {
		return m, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	if strings.TrimSpace(m.JobID) == "" {
		return m, fmt.Errorf("%w: job id is required", ErrMalformedMessage)
	}
	return m, nil
}

// Poison reports whether err marks a body that can never be processed.
func Poison(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrUnsupportedVersion)
}
