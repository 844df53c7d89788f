package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/photoprism"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		logDebug  bool
		wantEmpty bool
	}{
		{"default text info", "", "", false, false},
		{"debug enabled", "debug", "text", true, false},
		{"debug suppressed at info", "info", "text", true, true},
		{"info suppressed at warn", "warn", "JSON", false, true},
		{"unknown level falls back to info", "verbose", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.level, tt.format, &buf)
			if tt.logDebug {
				logger.Debug("hello", "k", "v")
			} else {
				logger.Info("hello", "k", "v")
			}

			out := buf.String()
			if tt.wantEmpty {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
				t.Errorf("unexpected text output %q", out)
			}
		})
	}
}

func TestNewLogger_JSONWarn(t *testing.T) {
	var buf bytes.Buffer
	newLogger("warn", "json", &buf).Warn("disk", "free", 3)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if m["msg"] != "disk" || m["level"] != "WARN" {
		t.Errorf("unexpected record %v", m)
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"scan.png", true},
		{"anim.gif", true},
		{"old.bmp", true},
		{"raw.cr2", false},
		{"notes.txt", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isImageFile(tt.name); got != tt.want {
				t.Errorf("isImageFile(%q) = %v; want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCollectImageFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) string {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	top := mustWrite("a.jpg")
	mustWrite("readme.txt")
	nested := mustWrite("sub/b.png")
	single := mustWrite("other/c.gif")

	flat, err := collectImageFiles([]string{dir}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(flat, []string{top}) {
		t.Errorf("non-recursive: got %v", flat)
	}

	all, err := collectImageFiles([]string{dir}, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{top, nested, single} {
		if !slices.Contains(all, want) {
			t.Errorf("recursive: missing %s in %v", want, all)
		}
	}
	if len(all) != 3 {
		t.Errorf("recursive: expected 3 files, got %v", all)
	}

	files, err := collectImageFiles([]string{single}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(files, []string{single}) {
		t.Errorf("single file: got %v", files)
	}

	if _, err := collectImageFiles([]string{filepath.Join(dir, "missing")}, false); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestListLibraryPhotos(t *testing.T) {
	// Every third photo of the fake library is a video
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		photos := []photoprism.Photo{}
		for i := offset; i < 250 && i < offset+count; i++ {
			typ := "image"
			if i%3 == 2 {
				typ = "video"
			}
			photos = append(photos, photoprism.Photo{UID: fmt.Sprintf("p%d", i), Type: typ})
		}
		json.NewEncoder(w).Encode(photos)
	}))
	defer server.Close()

	pp, err := photoprism.NewFromToken(server.URL, "t", "d")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"all photos", 0, 167},
		{"limited", 10, 10},
		{"limit above library size", 1000, 167},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			photos, err := listLibraryPhotos(context.Background(), pp, "", tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if len(photos) != tt.want {
				t.Errorf("expected %d photos, got %d", tt.want, len(photos))
			}
			for _, p := range photos {
				if p.Type == "video" {
					t.Fatalf("video %s should be skipped", p.UID)
				}
			}
		})
	}
}
