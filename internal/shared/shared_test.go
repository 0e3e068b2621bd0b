package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "30", want: 30 * time.Second},
		{name: "padded seconds", value: " 7 ", want: 7 * time.Second},
		{name: "negative seconds", value: "-5", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "past http date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	t.Run("RateLimitError Unwraps", func(t *testing.T) {
		err := fmt.Errorf("fetch: %w", &RateLimitError{RetryAfter: 3 * time.Second})

		if !errors.Is(err, ErrRateLimited) {
			t.Error("expected errors.Is to match ErrRateLimited")
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) || rl.RetryAfter != 3*time.Second {
			t.Errorf("expected RateLimitError with 3s delay, got %v", rl)
		}
	})

	t.Run("UpstreamError Unwraps", func(t *testing.T) {
		err := &UpstreamError{Status: 502, Message: "bad gateway"}

		if !errors.Is(err, ErrUpstream) {
			t.Error("expected errors.Is to match ErrUpstream")
		}
		if !strings.Contains(err.Error(), "bad gateway") {
			t.Errorf("expected message in error, got %s", err.Error())
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("NewLogger Writes To Writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "component", "test").Info("hello")

		if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "component=test") {
			t.Errorf("unexpected log output %q", buf.String())
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "tui.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		logger.Info("to file")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "to file") {
			t.Errorf("expected log line in file, got %q", data)
		}
	})

	t.Run("GenerateID", func(t *testing.T) {
		a, b := GenerateID(), GenerateID()
		if a == b || len(a) != 36 {
			t.Errorf("expected distinct uuids, got %s and %s", a, b)
		}
	})
}

type fakeSecrets struct {
	payload *string
	err     error
}

func (f fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{Name: in.SecretId, SecretString: f.payload}, nil
}

func TestEnv(t *testing.T) {
	t.Run("ApplySecret", func(t *testing.T) {
		t.Setenv("CLIENT_ID", "already_set")
		os.Unsetenv("FINDTUNE_TEST_SECRET")
		t.Cleanup(func() { os.Unsetenv("FINDTUNE_TEST_SECRET") })

		client := fakeSecrets{payload: aws.String(`{"CLIENT_ID":"from_secret","FINDTUNE_TEST_SECRET":"abc"}`)}
		applied, err := ApplySecret(context.Background(), client, "findtune/prod")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if applied != 1 {
			t.Errorf("expected 1 applied variable, got %d", applied)
		}
		if os.Getenv("CLIENT_ID") != "already_set" {
			t.Error("existing variables must not be overwritten")
		}
		if os.Getenv("FINDTUNE_TEST_SECRET") != "abc" {
			t.Error("expected secret variable to be exported")
		}
	})

	t.Run("ApplySecret Rejects Non JSON", func(t *testing.T) {
		client := fakeSecrets{payload: aws.String("plain text")}
		if _, err := ApplySecret(context.Background(), client, "findtune/prod"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadEnv Reads Dotenv File", func(t *testing.T) {
		os.Unsetenv("FINDTUNE_DOTENV_VALUE")
		t.Cleanup(func() { os.Unsetenv("FINDTUNE_DOTENV_VALUE") })

		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("FINDTUNE_DOTENV_VALUE=loaded\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}

		if err := LoadEnv(context.Background(), NewLogger(&bytes.Buffer{}), path, SecretsConfig{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if os.Getenv("FINDTUNE_DOTENV_VALUE") != "loaded" {
			t.Error("expected value from env file")
		}
	})

	t.Run("LoadEnv Missing File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.env")
		if err := LoadEnv(context.Background(), NewLogger(&bytes.Buffer{}), path, SecretsConfig{}); err != nil {
			t.Errorf("missing env file should not fail, got %v", err)
		}
	})
}
