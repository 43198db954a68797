package artifact

import (
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BENEISSUE_S3_ENDPOINT", "")
	if _, ok := ConfigFromEnv(); ok {
		t.Error("no endpoint should disable transcripts")
	}

	t.Setenv("BENEISSUE_S3_ENDPOINT", "localhost:9000")
	t.Setenv("BENEISSUE_S3_ACCESS_KEY", "minio")
	t.Setenv("BENEISSUE_S3_SECRET_KEY", "minio123")
	t.Setenv("BENEISSUE_S3_BUCKET", "")
	t.Setenv("BENEISSUE_S3_USE_SSL", "false")
	cfg, ok := ConfigFromEnv()
	if !ok {
		t.Fatal("expected transcripts to be enabled")
	}
	if cfg.Bucket != "beneissue-transcripts" {
		t.Errorf("Bucket = %q, want default", cfg.Bucket)
	}
	if cfg.UseSSL {
		t.Error("UseSSL = true, want false")
	}
}

func TestNewS3Store_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no endpoint", Config{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"no keys", Config{Endpoint: "localhost:9000", Bucket: "b"}},
		{"no bucket", Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		if _, err := NewS3Store(tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	s, err := NewS3Store(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if s.region != "us-east-1" {
		t.Errorf("region = %q, want us-east-1", s.region)
	}
}

func TestNewFromEnv_Disabled(t *testing.T) {
	t.Setenv("BENEISSUE_S3_ENDPOINT", "")
	s, err := NewFromEnv()
	if err != nil || s != nil {
		t.Errorf("NewFromEnv = %v, %v; want nil, nil", s, err)
	}
}

func TestNormalizeKey(t *testing.T) {
	got, err := normalizeKey(" /octo/widgets/42/fix-1.log")
	if err != nil || got != "octo/widgets/42/fix-1.log" {
		t.Errorf("normalizeKey = %q, %v", got, err)
	}
	for _, bad := range []string{"", "  /", "octo/../../etc"} {
		if _, err := normalizeKey(bad); err == nil {
			t.Errorf("normalizeKey(%q): expected error", bad)
		}
	}
}

func TestTranscriptPrefix(t *testing.T) {
	if got := TranscriptPrefix("octo/widgets", 42); got != "octo/widgets/42/" {
		t.Errorf("TranscriptPrefix = %q", got)
	}
}
