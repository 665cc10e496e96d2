package storage

import "testing"

func TestURL(t *testing.T) {
	tests := []struct {
		secure bool
		want   string
	}{
		{false, "http://media.local:9000/sermons/2024/abc.mp3"},
		{true, "https://media.local:9000/sermons/2024/abc.mp3"},
	}
	for _, tt := range tests {
		m := &MediaStore{bucket: "sermons", endpoint: "media.local:9000", secure: tt.secure}
		if got := m.URL("2024/abc.mp3"); got != tt.want {
			t.Errorf("URL() = %q, want %q", got, tt.want)
		}
	}
}
