package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lexiqai/tts-gateway/internal/tts"
)

func TestFilterLanguage(t *testing.T) {
	voices := []tts.Voice{
		{Name: "en-GB-Standard-A", LanguageCode: "en-GB"},
		{Name: "en-US-Standard-A", LanguageCode: "en-US"},
		{Name: "fr-FR-Standard-A", LanguageCode: "fr-FR"},
	}

	tests := []struct {
		prefix   string
		expected int
	}{
		{"", 3},
		{"en", 2},
		{"EN-gb", 1},
		{"de", 0},
	}

	for _, tt := range tests {
		if got := filterLanguage(voices, tt.prefix); len(got) != tt.expected {
			t.Errorf("prefix %q: expected %d voices, got %d", tt.prefix, tt.expected, len(got))
		}
	}
	if len(voices) != 3 || voices[2].LanguageCode != "fr-FR" {
		t.Error("Expected input slice to be left untouched")
	}
}

func TestSynthesisRequest(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(file, []byte("from a file"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		args     []string
		text     string
		file     string
		fileSSML bool
		stdin    string
		wantText string
		wantSSML string
		wantErr  bool
	}{
		{name: "argument", args: []string{"hello"}, wantText: "hello"},
		{name: "text flag", text: "flag text", wantText: "flag text"},
		{name: "file", file: file, wantText: "from a file"},
		{name: "stdin ssml", file: "-", fileSSML: true, stdin: "<speak>hi</speak>", wantSSML: "<speak>hi</speak>"},
		{name: "argument and flag", args: []string{"a"}, text: "b", wantErr: true},
		{name: "no input", wantErr: true},
		{name: "missing file", file: filepath.Join(dir, "missing.txt"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synthesizeFlags.text = tt.text
			synthesizeFlags.ssml = ""
			synthesizeFlags.file = tt.file
			synthesizeFlags.fileSSML = tt.fileSSML
			synthesizeFlags.encoding = "MP3"
			t.Cleanup(func() {
				synthesizeFlags.text, synthesizeFlags.file, synthesizeFlags.fileSSML = "", "", false
			})
			synthesizeCmd.SetIn(strings.NewReader(tt.stdin))

			req, err := synthesisRequest(synthesizeCmd, tt.args)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.Text != tt.wantText || req.SSML != tt.wantSSML {
				t.Errorf("Expected text %q ssml %q, got %q %q", tt.wantText, tt.wantSSML, req.Text, req.SSML)
			}
			if req.AudioEncoding != tts.EncodingMP3 {
				t.Errorf("Expected MP3 encoding, got %s", req.AudioEncoding)
			}
		})
	}
}
