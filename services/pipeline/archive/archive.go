// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive copies ingested dispatch workbooks to Cloud Storage
// so source files survive after the local copy is rotated.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config holds archive destination settings.
type Config struct {
	CredentialsFile string
	Bucket          string

	// Prefix is the object key prefix, default "dispatch".
	Prefix string
}

// Archiver uploads workbooks to a GCS bucket. A nil Archiver is a
// no-op so the pipeline runs without archival configured.
type Archiver struct {
	cfg    Config
	client *storage.Client
	log    *slog.Logger
}

// New creates an Archiver from a service account key file.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket not configured")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "dispatch"
	}
	if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Archiver{
		cfg:    cfg,
		client: client,
		log:    slog.Default().With("component", "archive"),
	}, nil
}

// ObjectPath builds the destination key for a workbook: the prefix,
// the ingest date, and the base file name.
func (a *Archiver) ObjectPath(localPath string, now time.Time) string {
	return path.Join(a.cfg.Prefix, now.UTC().Format("2006/01/02"), filepath.Base(localPath))
}

// Upload copies a local workbook to the bucket.
//
// Outputs:
//
//	string - The gs:// URI of the stored object
//	error - Open, copy, or close failure
func (a *Archiver) Upload(ctx context.Context, localPath string) (string, error) {
	if a == nil {
		return "", nil
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	objPath := a.ObjectPath(localPath, time.Now())
	w := a.client.Bucket(a.cfg.Bucket).Object(objPath).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, f); err != nil {
		return "", fmt.Errorf("copy %s to gcs object %s: %w", localPath, objPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for %s: %w", objPath, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.cfg.Bucket, objPath)
	a.log.Info("archived workbook", "source", localPath, "destination", uri)
	return uri, nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
