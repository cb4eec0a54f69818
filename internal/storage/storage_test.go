package storage

import "testing"

func TestConfigEnabled(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{"empty config", Config{}, false},
		{"only endpoint set", Config{Endpoint: "http://localhost:9000"}, false},
		{"only bucket set", Config{Bucket: "backups"}, false},
		{"endpoint and bucket set", Config{Endpoint: "http://localhost:9000", Bucket: "backups"}, true},
		{
			"full config",
			Config{
				Endpoint:  "http://localhost:9000",
				AccessKey: "minioadmin",
				SecretKey: "minioadmin",
				Region:    "us-east-1",
				Bucket:    "backups",
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Enabled(); got != tt.expected {
				t.Errorf("Config.Enabled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestServiceEnabled(t *testing.T) {
	tests := []struct {
		name     string
		service  Service
		expected bool
	}{
		{"nil client", Service{client: nil}, false},
		{"empty service", Service{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.service.Enabled(); got != tt.expected {
				t.Errorf("Service.Enabled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUploadOptions(t *testing.T) {
	opts := UploadOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"kind": "index-artifact"},
	}
	if opts.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q, want application/octet-stream", opts.ContentType)
	}
	if len(opts.Metadata) != 1 {
		t.Errorf("Metadata length = %d, want 1", len(opts.Metadata))
	}
}

func TestUploadResult(t *testing.T) {
	result := UploadResult{
		Key:    "worker-1/index-20260731120000.sqlite3",
		Bucket: "backups",
		ETag:   "abc123",
		Size:   1024,
	}
	if result.Key != "worker-1/index-20260731120000.sqlite3" {
		t.Errorf("Key = %q, unexpected", result.Key)
	}
	if result.Bucket != "backups" {
		t.Errorf("Bucket = %q, want backups", result.Bucket)
	}
	if result.Size != 1024 {
		t.Errorf("Size = %d, want 1024", result.Size)
	}
}
