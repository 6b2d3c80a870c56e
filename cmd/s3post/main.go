package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/s3post/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configFile string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "s3post",
		Short: "Sign and send browser-style POST uploads to S3",
		Long: `s3post builds AWS4-HMAC-SHA256 signed POST policies and uploads files with them.

Settings are read from a .env file, an optional config file,
S3POST_* environment variables and flags, in increasing precedence.
Missing keys fall back to the AWS default credential chain.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(verbose)
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (optional)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("bucket", "", "target bucket")
	flags.String("region", "", "bucket region")
	flags.String("endpoint", "", "upload endpoint (default: https://<bucket>.s3.<region>.amazonaws.com)")
	flags.String("acl", "", "canned ACL of the uploaded object")
	flags.String("path-prefix", "", "object key prefix the policy requires")
	flags.String("content-type-prefix", "", "Content-Type prefix the policy requires")
	flags.Int64("max-length", 0, "maximum upload size in bytes")
	flags.Duration("expiry", 0, "policy lifetime (e.g. 15m)")

	rootCmd.AddCommand(NewSignCommand())
	rootCmd.AddCommand(NewUploadCommand())

	return rootCmd
}

func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig layers the config file, environment and explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.UploadConfig, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(
		config.WithFile(configFile),
		config.WithEnv(),
		flagOverrides(cmd),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func flagOverrides(cmd *cobra.Command) config.Option {
	return func(c *config.UploadConfig) error {
		flags := cmd.Flags()
		for name, target := range map[string]*string{
			"bucket":              &c.Bucket,
			"region":              &c.Region,
			"endpoint":            &c.Endpoint,
			"acl":                 &c.ACL,
			"path-prefix":         &c.PathPrefix,
			"content-type-prefix": &c.ContentTypePrefix,
		} {
			if flags.Changed(name) {
				*target, _ = flags.GetString(name)
			}
		}
		if flags.Changed("max-length") {
			c.MaxLength, _ = flags.GetInt64("max-length")
		}
		if flags.Changed("expiry") {
			c.Expiry, _ = flags.GetDuration("expiry")
		}
		return nil
	}
}
