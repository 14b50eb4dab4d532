// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blob offloads oversized activity/task payloads to S3-compatible
// object storage so the relational and document Store backends only ever
// persist a small reference. The engine runs activity outputs through it:
// an activity result's Output column holds either the raw payload or, once
// it reaches the configured Threshold, a ref pointing at the object that
// holds it.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config selects the bucket/prefix payloads above Threshold are offloaded
// to. A zero Threshold disables offload (Store always returns it inline).
type Config struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	Threshold int
}

// Store offloads and retrieves oversized payloads in Bucket under Prefix.
type Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	threshold int
}

const refMarker = "durex-blob-ref-v1"

// ref is the small JSON value Encode writes in place of an oversized
// payload; Decode recognizes it by refMarker and fetches the real bytes.
type ref struct {
	Marker string `json:"marker"`
	Key    string `json:"key"`
}

// Open builds a Store from an AWS SDK default config resolution chain
// (environment, shared config file, EC2/ECS role), scoped to cfg.Region.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("blob: loading AWS config: %w", err)
	}
	return &Store{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		threshold: cfg.Threshold,
	}, nil
}

// Encode returns payload unchanged if it's under the threshold; otherwise
// it uploads payload to S3 and returns a small JSON ref in its place.
func (s *Store) Encode(ctx context.Context, payload []byte) ([]byte, error) {
	if s.threshold <= 0 || len(payload) < s.threshold {
		return payload, nil
	}

	key := s.prefix + uuid.NewString()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("blob: uploading %s: %w", key, err)
	}

	return json.Marshal(ref{Marker: refMarker, Key: key})
}

// Decode returns stored unchanged unless it is a ref written by Encode, in
// which case it fetches and returns the real payload from S3.
func (s *Store) Decode(ctx context.Context, stored []byte) ([]byte, error) {
	var r ref
	if err := json.Unmarshal(stored, &r); err != nil || r.Marker != refMarker {
		return stored, nil
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(r.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("blob: fetching %s: %w", r.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: reading %s: %w", r.Key, err)
	}
	return data, nil
}
