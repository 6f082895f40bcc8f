package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-d", "db", "-a", "127.0.0.1:9090", "-M", ":9102", "-s", "secret",
			"-u", "user", "-p", "password", "-g", "us-west-1", "-e", "http://endpoint",
			"-b", "primary", "-B", "cold", "-x", "https://s3/primary/",
			"-w", "8", "-k", "100", "-r", "a.tar", "-R", "5", "-l", "debug",
			"-m", "duplicates", "-o", "/tmp/out", "-t", "cold", "-n",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN:      "db",
				EndpointAddrGRPC: "127.0.0.1:9090",
				MetricsAddr:      ":9102",
				SecretKey:        "secret",
				S3AccessKey:      "user",
				S3SecretKey:      "password",
				S3Region:         "us-west-1",
				S3BaseEndpoint:   "http://endpoint",
				PrimaryBucket:    "primary",
				ColdBucket:       "cold",
				ReferencePrefix:  "https://s3/primary/",
				Workers:          8,
				BatchSize:        100,
				ResumeAfter:      "a.tar",
				DryRun:           true,
				RetryMaxElapsed:  5 * time.Second,
				LogLevel:         "debug",
				Mode:             ModeDuplicates,
				OutputDir:        "/tmp/out",
				ScanTier:         "cold",
			}},
		{name: "positional names and foreign flags are ignored", args: []string{"cmd",
			"-n", "bag1.tar", "-c", "cfg.json", "-w", "2", "bag2.tar",
		}, expectPanic: false,
			expected: &Config{
				Workers: 2,
				DryRun:  true,
			}},
		{name: "bad int", args: []string{"cmd", "-w", "many"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
