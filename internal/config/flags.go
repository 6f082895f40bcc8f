package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/flagx"
)

// ValueFlags lists the flags that take a value; BoolFlags the switches.
// Commands use both to tell flags apart from positional object names.
var (
	ValueFlags = []string{"-d", "-a", "-M", "-s", "-u", "-p", "-g", "-e", "-b", "-B", "-x", "-w", "-k", "-r", "-R", "-l", "-m", "-o", "-t"}
	BoolFlags  = []string{"-n"}
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-a string   gRPC bind address (e.g., ":50051")
//	-M string   metrics bind address (e.g., ":9102"); empty disables
//	-s string   JWT HMAC secret key
//	-u string   S3 access key
//	-p string   S3 secret key
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-b string   primary tier bucket
//	-B string   cold tier bucket
//	-x string   reference URL prefix for reports
//	-w int      parallel workers
//	-k int      listing page size
//	-r string   resume after this object name
//	-R int      retry budget, seconds
//	-l string   log level
//	-m string   auditor mode: audit | json | missing | duplicates
//	-o string   output directory for JSON documents
//	-t string   scanner tier: primary | cold | all
//	-n          dry run
//
// Notes:
//   - Value flags are filtered from os.Args with flagx.FilterArgs and the
//     switches with flagx.FilterBoolArgs, so positional object names and
//     flags owned by other components never reach this FlagSet.
//   - The retry budget is accepted as whole seconds.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], ValueFlags)
	args = append(args, flagx.FilterBoolArgs(os.Args[1:], BoolFlags)...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.MetricsAddr, "M", config.MetricsAddr, "address and port to serve metrics")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.PrimaryBucket, "b", config.PrimaryBucket, "primary tier bucket")
	fs.StringVar(&config.ColdBucket, "B", config.ColdBucket, "cold tier bucket")
	fs.StringVar(&config.ReferencePrefix, "x", config.ReferencePrefix, "reference URL prefix")
	fs.IntVar(&config.Workers, "w", config.Workers, "parallel workers")
	fs.IntVar(&config.BatchSize, "k", config.BatchSize, "listing page size")
	fs.StringVar(&config.ResumeAfter, "r", config.ResumeAfter, "resume after object name")

	retryMaxElapsed := fs.Int("R", int(config.RetryMaxElapsed.Seconds()), "retry budget (in seconds)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.Mode, "m", config.Mode, "auditor mode")
	fs.StringVar(&config.OutputDir, "o", config.OutputDir, "output directory")
	fs.StringVar(&config.ScanTier, "t", config.ScanTier, "scanner tier")
	fs.BoolVar(&config.DryRun, "n", config.DryRun, "dry run")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RetryMaxElapsed = time.Duration(*retryMaxElapsed) * time.Second
}

// ObjectNames returns the positional command-line arguments, which commands
// treat as object names.
func ObjectNames() []string {
	return flagx.Positional(os.Args[1:], BoolFlags)
}
