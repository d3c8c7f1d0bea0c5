package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/registry"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Keyword:   "sunset",
		QueryTime: 42,
		Total:     2,
		Results: []*models.SearchResult{
			{Name: "beach.jpg", Path: "/photos/beach.jpg", Description: "A beach at sunset", Score: 0.91},
			{Name: "hill.png", Path: "/photos/hill.png", Thumbnail: "/thumbs/x.png", Score: 0.5},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Keyword != "sunset" || decoded.QueryTime != 42 || len(decoded.Results) != 2 {
		t.Errorf("decoded: %+v", decoded)
	}
	if decoded.Results[0].Path != "/photos/beach.jpg" {
		t.Errorf("first result path: %s", decoded.Results[0].Path)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`Found 2 results for "sunset" in 42ms`, "Rank: 1 | Score: 0.9100", "Path: /photos/hill.png", "Thumbnail: /thumbs/x.png", "A beach at sunset"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	want := "0.9100\t/photos/beach.jpg\n0.5000\t/photos/hill.png\n"
	if buf.String() != want {
		t.Errorf("compact output = %q, want %q", buf.String(), want)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" compact ", OutputCompact, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteDirectories(t *testing.T) {
	dirs := []registry.DirectoryStatus{
		{
			RegisteredDirectory: models.RegisteredDirectory{Name: "photos", RootPath: "/photos", EnableRename: true},
			Watching:            true,
			Task:                &registry.TaskStatus{Done: true, Total: 7, Indexed: 6, Failed: 1},
		},
		{
			RegisteredDirectory: models.RegisteredDirectory{Name: "scans", RootPath: "/scans"},
		},
	}
	var buf bytes.Buffer
	if err := WriteDirectories(&buf, dirs, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"NAME", "/photos", "6/7", "/scans"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteDirectories(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No directories") {
		t.Errorf("empty list output: %q", buf.String())
	}

	buf.Reset()
	if err := WriteDirectories(&buf, dirs, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []registry.DirectoryStatus
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0].Task.Indexed != 6 {
		t.Errorf("decoded: %+v", decoded)
	}
}
