package formatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/findtune/internal/models"
)

var tracks = []models.Track{
	{ID: "track1", URI: "spotify:track:track1", Name: "Song One", Artists: []string{"Artist One"}, Album: "Album One", DurationMs: 180000},
	{ID: "track2", URI: "spotify:track:track2", Name: "Song, Two", Artists: []string{"Artist Two", "Guest"}, DurationMs: 245000},
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(tracks)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "ID,URI,Name,Artists,Album,Duration\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "track1,spotify:track:track1,Song One,Artist One,Album One,180") {
			t.Errorf("CSV missing track1 record, got: %s", output)
		}
		if !strings.Contains(output, `"Song, Two"`) {
			t.Errorf("expected comma in name to be quoted, got: %s", output)
		}
	})

	t.Run("ExportToCSV Empty", func(t *testing.T) {
		data, err := ExportToCSV(nil)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if lines := strings.Count(string(data), "\n"); lines != 1 {
			t.Errorf("expected only the header, got %d lines", lines)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown("Liked Songs", tracks)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "# Liked Songs\n") {
			t.Errorf("Markdown missing title, got: %s", output)
		}
		if !strings.Contains(output, "**Tracks**: 2") {
			t.Errorf("Markdown missing track count")
		}
		if !strings.Contains(output, "1. Artist One - [Song One](https://open.spotify.com/track/track1) (Album One) [3:00]") {
			t.Errorf("Markdown missing first track, got: %s", output)
		}
		if !strings.Contains(output, "2. Artist Two, Guest - [Song, Two](https://open.spotify.com/track/track2) [4:05]") {
			t.Errorf("Markdown missing second track, got: %s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText("Liked Songs", tracks)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Tracks: 2") {
			t.Errorf("text missing track count")
		}
		if !strings.Contains(output, "1. Artist One - Song One\n") {
			t.Errorf("text missing first track, got: %s", output)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"csv", FormatCSV},
		{".CSV", FormatCSV},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{"txt", FormatText},
		{"text", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := ParseFormat("xml"); err == nil {
			t.Error("expected error for xml")
		}
	})
}

func TestFormatDuration(t *testing.T) {
	for ms, want := range map[int]string{0: "0:00", -5: "0:00", 59000: "0:59", 61000: "1:01", 3600000: "60:00"} {
		if got := FormatDuration(ms); got != want {
			t.Errorf("FormatDuration(%d) = %s, want %s", ms, got, want)
		}
	}
}

func TestWriteExport(t *testing.T) {
	t.Run("Writes File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "liked.md")

		written, err := WriteExport(FormatMarkdown, "Liked Songs", tracks, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if written != path {
			t.Errorf("expected %s, got %s", path, written)
		}

		data, err := os.ReadFile(path)
		if err != nil || !strings.HasPrefix(string(data), "# Liked Songs") {
			t.Errorf("unexpected file contents %q %v", data, err)
		}
	})

	t.Run("Unsupported Format", func(t *testing.T) {
		if _, err := WriteExport(Format("xml"), "x", tracks, filepath.Join(t.TempDir(), "x")); err == nil {
			t.Error("expected error")
		}
	})
}
