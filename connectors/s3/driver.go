// Copyright 2025 Polyconn Authors
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

// Package s3 implements the S3 object-storage backend driver. Statements
// are "VERB [key-or-prefix] [body]" lines:
//
//	LIST reports/2025/
//	GET reports/2025/summary.json
//	HEAD reports/2025/summary.json
//	PUT notes/today.txt some content
//	DELETE notes/today.txt
//
// The descriptor's Database field names the bucket; Username/Password carry
// the access key pair, or are left empty to use the ambient credential chain.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/polyconn/polyconn/connectors/base"
)

// API is the subset of the S3 client the driver calls. Satisfied by
// *s3.Client and by test fakes.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Driver maps verb statements onto S3 object operations in one bucket.
type Driver struct {
	client API
	bucket string
}

// New creates an unconnected S3 driver.
func New() *Driver {
	return &Driver{}
}

// Open builds the client and verifies access with HeadBucket.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	if desc.Database == "" {
		return fmt.Errorf("descriptor must name a bucket in the database field")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if region := desc.StringOption("region", ""); region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if desc.Username != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(desc.Username, desc.Password, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := desc.StringOption("endpoint", ""); endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(desc.Database)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", desc.Database, err)
	}

	d.client = client
	d.bucket = desc.Database
	return nil
}

// Close drops the client reference; the SDK holds no persistent transport.
func (d *Driver) Close(ctx context.Context) error {
	d.client = nil
	return nil
}

// RunQuery handles the read verbs: LIST, GET, HEAD.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	verb, key, _, err := parseStatement(statement)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "LIST":
		return d.list(ctx, key)
	case "GET":
		return d.get(ctx, key)
	case "HEAD":
		return d.head(ctx, key)
	default:
		return nil, fmt.Errorf("verb %q is not a read operation", verb)
	}
}

// RunDDL handles the write verbs: PUT, DELETE.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	verb, key, body, err := parseStatement(statement)
	if err != nil {
		return err
	}

	switch verb {
	case "PUT":
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte(body)),
		})
		return err
	case "DELETE":
		_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		})
		return err
	default:
		return fmt.Errorf("verb %q is not a write operation", verb)
	}
}

// PingStatement probes the bucket itself.
func (d *Driver) PingStatement() string {
	return "HEAD"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "s3"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "object_storage"}
}

func (d *Driver) list(ctx context.Context, prefix string) (*base.QueryResult, error) {
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}

	result := &base.QueryResult{
		Columns:  []string{"key", "size", "last_modified"},
		Metadata: map[string]interface{}{"truncated": aws.ToBool(out.IsTruncated)},
	}
	for _, obj := range out.Contents {
		result.Rows = append(result.Rows, []interface{}{
			aws.ToString(obj.Key),
			aws.ToInt64(obj.Size),
			aws.ToTime(obj.LastModified),
		})
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

func (d *Driver) get(ctx context.Context, key string) (*base.QueryResult, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}

	return &base.QueryResult{
		Columns:  []string{"key", "body"},
		Rows:     [][]interface{}{{key, string(body)}},
		RowCount: 1,
		Metadata: map[string]interface{}{
			"content_type":   aws.ToString(out.ContentType),
			"content_length": aws.ToInt64(out.ContentLength),
		},
	}, nil
}

func (d *Driver) head(ctx context.Context, key string) (*base.QueryResult, error) {
	// Bare HEAD probes the bucket, HEAD <key> probes an object
	if key == "" {
		if _, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)}); err != nil {
			return nil, err
		}
		return &base.QueryResult{
			Columns:  []string{"bucket"},
			Rows:     [][]interface{}{{d.bucket}},
			RowCount: 1,
		}, nil
	}

	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}

	return &base.QueryResult{
		Columns:  []string{"key", "size", "content_type"},
		Rows:     [][]interface{}{{key, aws.ToInt64(out.ContentLength), aws.ToString(out.ContentType)}},
		RowCount: 1,
	}, nil
}

// parseStatement splits "VERB [key] [body...]"; body is only meaningful for
// PUT and keeps its internal spacing.
func parseStatement(statement string) (verb, key, body string, err error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return "", "", "", fmt.Errorf("empty statement")
	}

	parts := strings.SplitN(statement, " ", 3)
	verb = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		key = parts[1]
	}
	if len(parts) > 2 {
		body = parts[2]
	}

	switch verb {
	case "LIST", "GET", "HEAD", "PUT", "DELETE":
		return verb, key, body, nil
	default:
		return "", "", "", fmt.Errorf("unknown verb %q", parts[0])
	}
}
