package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
)

func newDeepgramTest(t *testing.T, handler http.HandlerFunc) *DeepgramClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewDeepgramClient(DeepgramConfig{BaseURL: srv.URL, APIKey: "dg-key"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeepgramClient() error = %v", err)
	}
	return c
}

func TestDeepgramTranscribe(t *testing.T) {
	var gotQuery, gotAuth string
	var gotBody []byte
	c := newDeepgramTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" nyalakan lampu ","confidence":0.88}]}]}}`))
	})

	got, err := c.Transcribe(context.Background(), testUtterance(), Indonesian)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "nyalakan lampu" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Language != Indonesian {
		t.Errorf("Language = %q, want %q", got.Language, Indonesian)
	}
	if gotAuth != "Token dg-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	want := "channels=1&encoding=linear16&language=id&model=nova-2&sample_rate=16000&smart_format=true"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if len(gotBody) != 8 {
		t.Errorf("body length = %d, want 8", len(gotBody))
	}
}

func TestDeepgramTranscribe_NoSpeech(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no channels", `{"results":{"channels":[]}}`},
		{"no alternatives", `{"results":{"channels":[{"alternatives":[]}]}}`},
		{"blank transcript", `{"results":{"channels":[{"alternatives":[{"transcript":"  "}]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newDeepgramTest(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Transcribe(context.Background(), testUtterance(), English)
			if !errors.Is(err, ErrNoSpeech) {
				t.Errorf("err = %v, want ErrNoSpeech", err)
			}
		})
	}
}

func TestDeepgramTranscribe_ServiceError(t *testing.T) {
	c := newDeepgramTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_code":"INVALID_AUTH"}`, http.StatusUnauthorized)
	})

	_, err := c.Transcribe(context.Background(), testUtterance(), English)
	var recErr *RecognitionError
	if !errors.As(err, &recErr) {
		t.Fatalf("err = %v, want *RecognitionError", err)
	}
}

func TestDeepgramTranscribe_EmptyUtterance(t *testing.T) {
	c := newDeepgramTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty audio")
	})
	_, err := c.Transcribe(context.Background(), audio.Utterance{SampleRate: 16000}, English)
	if !errors.Is(err, ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", err)
	}
}

func TestNewDeepgramClient_RequiresKey(t *testing.T) {
	if _, err := NewDeepgramClient(DeepgramConfig{}, nil); err == nil {
		t.Error("expected error without api key")
	}
}

var _ Client = (*DeepgramClient)(nil)
