package queue

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeUsesCamelCaseKeys(t *testing.T) {
	msg := Message{
		JobID:      "job-123",
		RequestID:  "request-456",
		EnqueuedAt: time.Date(2026, 1, 30, 22, 0, 0, 0, time.UTC),
		Version:    MessageVersion,
	}

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{`"jobId":"job-123"`, `"requestId":"request-456"`, `"enqueuedAt":"2026-01-30T22:00:00Z"`, `"version":1`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("payload %s missing %s", payload, want)
		}
	}

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != msg.JobID || got.RequestID != msg.RequestID || !got.EnqueuedAt.Equal(msg.EnqueuedAt) || got.Version != msg.Version {
		t.Fatalf("decoded %+v, want %+v", got, msg)
	}
}

func TestEncodeRequiresJobID(t *testing.T) {
	if _, err := Encode(Message{}); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeClassifiesPoison(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"blank", " \n", ErrEmptyMessage},
		{"garbage", "{not json", ErrMalformedMessage},
		{"no job id", `{"requestId":"r-1","version":1}`, ErrMalformedMessage},
		{"future layout", `{"jobId":"j","version":9}`, ErrUnsupportedVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !Poison(err) {
				t.Fatalf("expected poison classification")
			}
		})
	}
	if Poison(errors.New("network")) {
		t.Fatalf("unrelated errors are not poison")
	}
}

func TestDecodeAcceptsUnversionedLayout(t *testing.T) {
	m, err := Decode([]byte(`{"jobId":"job-1"}`))
	if err != nil || m.JobID != "job-1" || m.Version != 0 {
		t.Fatalf("unexpected decode %+v %v", m, err)
	}
}
