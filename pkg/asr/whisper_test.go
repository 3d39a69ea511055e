package asr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/realtime-ai/simli-avatar/pkg/audio"
)

func TestWhisperProvider_Name(t *testing.T) {
	provider, err := NewWhisperProvider("test-api-key")
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if provider.Name() != "openai-whisper" {
		t.Errorf("Expected name 'openai-whisper', got '%s'", provider.Name())
	}
}

func TestNewWhisperProvider_NoAPIKey(t *testing.T) {
	_, err := NewWhisperProvider("")
	if err == nil {
		t.Fatal("Expected error when API key is empty")
	}

	var asrErr *Error
	if !errors.As(err, &asrErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if asrErr.Code != ErrCodeInvalidConfig {
		t.Errorf("Expected ErrCodeInvalidConfig, got %v", asrErr.Code)
	}
}

func TestWhisperProvider_Recognize_EmptyAudio(t *testing.T) {
	provider, err := NewWhisperProvider("test-api-key")
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Recognize(context.Background(), bytes.NewReader(nil), DefaultAudioConfig(), RecognitionConfig{})
	var asrErr *Error
	if !errors.As(err, &asrErr) || asrErr.Code != ErrCodeInvalidAudio {
		t.Fatalf("Expected ErrCodeInvalidAudio, got %v", err)
	}
}

func TestWhisperProvider_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-api-key" {
			t.Errorf("unexpected authorization %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	provider, err := NewWhisperProvider("test-api-key", WithWhisperBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	result, err := provider.Recognize(context.Background(), bytes.NewReader(make([]byte, 3200)), DefaultAudioConfig(), RecognitionConfig{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("Expected 'hello there', got %q", result.Text)
	}
	if result.Metadata["model"] != "whisper-1" {
		t.Errorf("Expected model metadata, got %v", result.Metadata)
	}
}

func TestAgentWhisperProvider_Recognize(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/agent-1/whisper" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "audio.wav" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if len(data) != 44+len(pcm) || string(data[:4]) != "RIFF" {
			t.Errorf("expected WAV upload, got %d bytes", len(data))
		}
		w.Write([]byte(`{"text":"what is the weather"}`))
	}))
	defer srv.Close()

	provider, err := NewAgentWhisperProvider(srv.URL+"/", "agent-1")
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	result, err := provider.Recognize(context.Background(), bytes.NewReader(pcm), DefaultAudioConfig(), RecognitionConfig{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if result.Text != "what is the weather" {
		t.Errorf("unexpected text %q", result.Text)
	}
}

func TestAgentWhisperProvider_WAVPassthrough(t *testing.T) {
	wav := []byte("RIFF-already-encoded")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if !bytes.Equal(data, wav) {
			t.Errorf("expected upload unchanged, got %q", data)
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	provider, _ := NewAgentWhisperProvider(srv.URL, "agent-1")
	cfg := DefaultAudioConfig()
	cfg.Encoding = "wav"
	if _, err := provider.Recognize(context.Background(), bytes.NewReader(wav), cfg, RecognitionConfig{}); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
}

func TestAgentWhisperProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider, _ := NewAgentWhisperProvider(srv.URL, "agent-1")
	_, err := provider.Recognize(context.Background(), bytes.NewReader([]byte{0, 0}), DefaultAudioConfig(), RecognitionConfig{})

	var asrErr *Error
	if !errors.As(err, &asrErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if asrErr.Code != ErrCodeAuthenticationFailed {
		t.Errorf("Expected ErrCodeAuthenticationFailed, got %v", asrErr.Code)
	}
	if !strings.Contains(asrErr.Error(), "401") {
		t.Errorf("Expected status in message, got %q", asrErr.Error())
	}
}

func TestNewAgentWhisperProvider_RequiresEndpoint(t *testing.T) {
	if _, err := NewAgentWhisperProvider("", "agent-1"); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestPCMConfig_FromRecorderFormat(t *testing.T) {
	cfg := PCMConfig(audio.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16})
	if cfg.SampleRate != 48000 || cfg.Channels != 2 || cfg.BitsPerSample != 16 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.Encoding != "pcm" {
		t.Errorf("Expected encoding 'pcm', got '%s'", cfg.Encoding)
	}

	if got := PCMConfig(audio.NewRecorder().Format()); got != DefaultAudioConfig() {
		t.Errorf("Recorder format %+v does not match default %+v", got, DefaultAudioConfig())
	}
}
