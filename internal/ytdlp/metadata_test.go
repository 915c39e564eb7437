package ytdlp

import (
	"context"
	"errors"
	"testing"
	"time"
)

type cannedExtractor struct {
	out  []byte
	err  error
	last Invocation
}

func (c *cannedExtractor) Extract(_ context.Context, inv Invocation) ([]byte, error) {
	c.last = inv
	return c.out, c.err
}

func (c *cannedExtractor) Version(context.Context) (string, error)      { return "test", nil }
func (c *cannedExtractor) MuxerVersion(context.Context) (string, error) { return "test", nil }

func TestGetMetadata(t *testing.T) {
	ex := &cannedExtractor{out: []byte(`{"id":"dQw4w9WgXcQ","title":"Never Gonna","duration":212,"uploader":"Rick","view_count":42,"thumbnail":"https://i.ytimg.com/x.jpg"}` + "\n")}

	info, err := GetMetadata(context.Background(), ex, "https://youtu.be/dQw4w9WgXcQ", 30*time.Second)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}

	if info.Title != "Never Gonna" || info.Duration != 212 || info.Uploader != "Rick" || info.ViewCount != 42 {
		t.Errorf("unexpected info %+v", info)
	}
	if ex.last.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", ex.last.Timeout)
	}
	want := []string{"--dump-json", "--no-download", "--no-warnings", "--", "https://youtu.be/dQw4w9WgXcQ"}
	if len(ex.last.Args) != len(want) {
		t.Fatalf("args = %v, want %v", ex.last.Args, want)
	}
	for i := range want {
		if ex.last.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, ex.last.Args[i], want[i])
		}
	}
}

func TestGetMetadata_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		json         string
		wantTitle    string
		wantUploader string
		wantThumb    string
	}{
		{"empty object", `{}`, "Unknown Title", "Unknown", ""},
		{"channel fallback", `{"title":"t","channel":"Chan"}`, "t", "Chan", ""},
		{"thumbnail list", `{"thumbnails":[{"url":"a"},{"url":"b"}]}`, "Unknown Title", "Unknown", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := GetMetadata(context.Background(), &cannedExtractor{out: []byte(tt.json)}, "u", time.Second)
			if err != nil {
				t.Fatalf("GetMetadata() error = %v", err)
			}
			if info.Title != tt.wantTitle || info.Uploader != tt.wantUploader || info.Thumbnail != tt.wantThumb {
				t.Errorf("got %+v", info)
			}
			if info.Duration != 0 || info.ViewCount != 0 {
				t.Errorf("numeric defaults should be zero, got %+v", info)
			}
		})
	}
}

func TestGetMetadata_Errors(t *testing.T) {
	_, err := GetMetadata(context.Background(), &cannedExtractor{out: []byte("not json")}, "u", time.Second)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("malformed output error = %v, want ErrMalformedOutput", err)
	}

	_, err = GetMetadata(context.Background(), &cannedExtractor{err: ErrTimeout}, "u", time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("extractor error = %v, want ErrTimeout", err)
	}
}
