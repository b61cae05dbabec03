package storage

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bucket/file.pdf", "bucket", "file.pdf", false},
		{"gs://bucket/folder/deep/file.pdf", "bucket", "folder/deep/file.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"http://bucket/file.pdf", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		bucket, object, err := ParseURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || object != tt.object {
			t.Errorf("ParseURI(%q) = %q, %q; want %q, %q", tt.uri, bucket, object, tt.bucket, tt.object)
		}
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/folder/file.pdf", "file.pdf"},
		{"gs://bucket/file.pdf", "file.pdf"},
		{"gs://bucket", "bucket"},
	}

	for _, tt := range tests {
		if got := FilenameFromURI(tt.uri); got != tt.want {
			t.Errorf("FilenameFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
