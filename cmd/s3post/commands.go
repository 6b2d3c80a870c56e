package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/s3post/pkg/config"
	"github.com/tendant/s3post/pkg/s3policy"
	"github.com/tendant/s3post/pkg/uploader"
)

func NewSignCommand() *cobra.Command {
	var objectKey string
	var contentType string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed policy and the form fields to post with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			signed, creds, err := signPolicy(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if objectKey == "" {
				objectKey = cfg.PathPrefix + "${filename}"
			}
			fields := map[string]string{}
			for _, f := range formFields(signed, creds, objectKey, contentType) {
				fields[f.Name] = f.Value
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"endpoint": cfg.Endpoint,
				"signing":  signed,
				"fields":   fields,
			})
		},
	}

	cmd.Flags().StringVar(&objectKey, "key", "", "object key (default: <path-prefix>${filename})")
	cmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "Content-Type form value")

	return cmd
}

func NewUploadCommand() *cobra.Command {
	var objectKey string
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Sign a policy and upload a file with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			signed, creds, err := signPolicy(ctx, cfg)
			if err != nil {
				return err
			}

			if contentType == "" {
				contentType = detectContentType(path)
			}
			if objectKey == "" {
				objectKey = newObjectKey(cfg.PathPrefix, path)
			}

			stderr := cmd.ErrOrStderr()
			client := uploader.NewClient(
				uploader.WithTimeout(cfg.Timeout),
				uploader.WithProgress(func(e uploader.ProgressEvent) {
					fmt.Fprintf(stderr, "\rUploading %s: %3.0f%% (%d/%d bytes)",
						filepath.Base(path), e.Progress, e.TotalBytesWritten, e.TotalBytesExpectedToWrite)
				}),
			)

			resp, err := client.Upload(ctx, &uploader.Request{
				URL:    cfg.Endpoint,
				Fields: formFields(signed, creds, objectKey, contentType),
				Files:  []uploader.File{{Filepath: path, Filetype: contentType}},
			})
			fmt.Fprintln(stderr)
			if err != nil {
				if resp != nil && resp.Data != "" {
					slog.Error("Upload rejected", "status", resp.Status, "response", resp.Data)
				}
				return fmt.Errorf("upload failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s/%s (status %d)\n", path, cfg.Bucket, objectKey, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&objectKey, "key", "", "object key (default: <path-prefix><uuid><ext>)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content-Type of the file (default: detected from extension)")

	return cmd
}

func signPolicy(ctx context.Context, cfg *config.UploadConfig) (*s3policy.SigningResult, aws.Credentials, error) {
	creds, err := cfg.ResolveCredentials(ctx)
	if err != nil {
		return nil, aws.Credentials{}, err
	}

	signer := s3policy.New(s3policy.WithMetaUUID(cfg.MetaUUID))
	signed, err := signer.SignPolicy(cfg.PolicyRequest(creds, time.Now()))
	if err != nil {
		return nil, aws.Credentials{}, fmt.Errorf("failed to sign policy: %w", err)
	}
	return signed, creds, nil
}

// formFields adds the session token of temporary credentials to the signed fields
func formFields(signed *s3policy.SigningResult, creds aws.Credentials, objectKey, contentType string) []s3policy.FormField {
	fields := signed.FormFields(objectKey, contentType)
	if creds.SessionToken != "" {
		fields = append(fields, s3policy.FormField{Name: config.SecurityTokenField, Value: creds.SessionToken})
	}
	return fields
}

func newObjectKey(prefix, path string) string {
	return prefix + uuid.NewString() + filepath.Ext(path)
}

func detectContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
