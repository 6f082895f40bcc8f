package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/preservaudit/internal/flagx"
	"github.com/dmitrijs2005/preservaudit/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Pointer fields distinguish "absent" from an explicit zero value.
type JsonConfig struct {
	DatabaseDSN      string          `json:"database_dsn"`
	EndpointAddrGRPC string          `json:"endpoint_addr_grpc"`
	MetricsAddr      string          `json:"metrics_addr"`
	SecretKey        string          `json:"secret_key"`
	S3AccessKey      string          `json:"s3_access_key"`
	S3SecretKey      string          `json:"s3_secret_key"`
	S3Region         string          `json:"s3_region"`
	S3BaseEndpoint   string          `json:"s3_base_endpoint"`
	PrimaryBucket    string          `json:"primary_bucket"`
	ColdBucket       string          `json:"cold_bucket"`
	ReferencePrefix  string          `json:"reference_prefix"`
	Workers          int             `json:"workers"`
	BatchSize        int             `json:"batch_size"`
	ResumeAfter      string          `json:"resume_after"`
	DryRun           *bool           `json:"dry_run"`
	RetryMaxElapsed  *timex.Duration `json:"retry_max_elapsed"`
	LogLevel         string          `json:"log_level"`
	Mode             string          `json:"mode"`
	OutputDir        string          `json:"output_dir"`
	ScanTier         string          `json:"scan_tier"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded.
//
// Only keys present in the file override the current values, so a partial
// file keeps the defaults for everything else. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.PrimaryBucket, c.PrimaryBucket)
	setString(&config.ColdBucket, c.ColdBucket)
	setString(&config.ReferencePrefix, c.ReferencePrefix)
	setString(&config.ResumeAfter, c.ResumeAfter)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.Mode, c.Mode)
	setString(&config.OutputDir, c.OutputDir)
	setString(&config.ScanTier, c.ScanTier)

	if c.Workers > 0 {
		config.Workers = c.Workers
	}
	if c.BatchSize > 0 {
		config.BatchSize = c.BatchSize
	}
	if c.DryRun != nil {
		config.DryRun = *c.DryRun
	}
	if c.RetryMaxElapsed != nil {
		config.RetryMaxElapsed = c.RetryMaxElapsed.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
