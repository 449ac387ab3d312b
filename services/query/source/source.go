// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source loads query inputs and turns them into node trees.
//
// A location is a file path, "-" for stdin, an http(s) URL or a
// gs://bucket/object reference. The loaded bytes are handed to the HTML
// parser or to a tree-sitter grammar depending on the input's extension,
// content type or an explicit syntax name.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

const tracerName = "nodequery.source"

// DefaultMaxSize bounds how many bytes a single input may have.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// DefaultTimeout bounds a single http(s) fetch.
const DefaultTimeout = 30 * time.Second

const defaultUserAgent = "nodequery/1.0"

// Kind says where an input came from.
type Kind string

const (
	KindFile  Kind = "file"
	KindStdin Kind = "stdin"
	KindHTTP  Kind = "http"
	KindGCS   Kind = "gs"
)

// Input is a loaded input.
type Input struct {
	// Location is the location as given.
	Location string
	Kind     Kind
	// Name is the base name used for syntax detection, e.g. "index.html".
	Name string
	// ContentType is set for http(s) inputs and gs:// objects.
	ContentType string
	Content     []byte
}

// HTTPDoer is the subset of *http.Client used for http(s) inputs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ObjectReader opens objects in cloud storage.
type ObjectReader interface {
	// NewObjectReader returns a reader for bucket/object and the object's
	// content type.
	NewObjectReader(ctx context.Context, bucket, object string) (io.ReadCloser, string, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client for http(s) inputs.
func WithHTTPClient(c HTTPDoer) Option {
	return func(l *Loader) { l.http = c }
}

// WithObjectReader sets the reader for gs:// inputs. Without one a cloud
// storage client is created on first use.
func WithObjectReader(r ObjectReader) Option {
	return func(l *Loader) { l.objects = r }
}

// WithCredentialsFile sets a service account key for the cloud storage
// client. Empty means application default credentials.
func WithCredentialsFile(path string) Option {
	return func(l *Loader) { l.credentials = path }
}

// WithStdin sets the reader used for "-".
func WithStdin(r io.Reader) Option {
	return func(l *Loader) { l.stdin = r }
}

// WithMaxSize sets the per-input size limit. Non-positive values keep the
// default.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithUserAgent sets the User-Agent header of http(s) fetches.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader loads inputs from any supported location.
//
// Thread Safety: Safe for concurrent use. The lazily created cloud storage
// client is shared.
type Loader struct {
	http        HTTPDoer
	objects     ObjectReader
	credentials string
	stdin       io.Reader
	maxSize     int64
	userAgent   string
	logger      *slog.Logger

	gcsOnce   sync.Once
	gcsClient *storage.Client
	gcsErr    error
}

// NewLoader returns a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		http:      &http.Client{Timeout: DefaultTimeout},
		stdin:     os.Stdin,
		maxSize:   DefaultMaxSize,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases the cloud storage client if one was created.
func (l *Loader) Close() error {
	if l.gcsClient != nil {
		return l.gcsClient.Close()
	}
	return nil
}

// Load reads the input at location.
//
// Description:
//
//	Dispatches on the location: "-" reads stdin, http:// and https:// are
//	fetched with GET, gs://bucket/object is read from cloud storage and
//	anything else is a local path. Inputs larger than the size limit fail
//	with ErrTooLarge.
//
// Outputs:
//
//	*Input - The loaded input.
//	error  - ErrEmptyLocation, ErrUnsupportedScheme, ErrTooLarge, ErrFetch,
//	         ErrCredentials or an I/O error.
func (l *Loader) Load(ctx context.Context, location string) (*Input, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrEmptyLocation
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "source.Loader.Load",
		trace.WithAttributes(attribute.String("source.location", location)),
	)
	defer span.End()

	in, err := l.load(ctx, location)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("source.kind", string(in.Kind)),
		attribute.Int("source.bytes", len(in.Content)),
	)
	telemetry.SetSpanOK(span)
	telemetry.LoggerWithTrace(ctx, l.logger).Debug("input loaded",
		slog.String("location", location),
		slog.String("kind", string(in.Kind)),
		slog.Int("bytes", len(in.Content)),
	)
	return in, nil
}

func (l *Loader) load(ctx context.Context, location string) (*Input, error) {
	if location == "-" {
		content, err := l.readAll(l.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return &Input{Location: location, Kind: KindStdin, Name: "stdin", Content: content}, nil
	}

	if i := strings.Index(location, "://"); i > 0 {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", location, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l.loadHTTP(ctx, location, u)
		case "gs":
			return l.loadGCS(ctx, location, u)
		case "file":
			return l.loadFile(location, u.Path)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return l.loadFile(location, location)
}

func (l *Loader) loadFile(location, p string) (*Input, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	content, err := l.readAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return &Input{Location: location, Kind: KindFile, Name: filepath.Base(p), Content: content}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, location string, u *url.URL) (*Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %s", ErrFetch, location, resp.Status)
	}
	if resp.ContentLength > l.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, resp.ContentLength, l.maxSize)
	}

	content, err := l.readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = ""
	}
	return &Input{
		Location:    location,
		Kind:        KindHTTP,
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func (l *Loader) loadGCS(ctx context.Context, location string, u *url.URL) (*Input, error) {
	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("%w: %q needs gs://bucket/object", ErrFetch, location)
	}

	objects, err := l.objectReader(ctx)
	if err != nil {
		return nil, err
	}
	rc, contentType, err := objects.NewObjectReader(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, location, err)
	}
	defer rc.Close()

	content, err := l.readAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return &Input{
		Location:    location,
		Kind:        KindGCS,
		Name:        path.Base(object),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func (l *Loader) objectReader(ctx context.Context) (ObjectReader, error) {
	if l.objects != nil {
		return l.objects, nil
	}
	l.gcsOnce.Do(func() {
		var opts []option.ClientOption
		if l.credentials != "" {
			if _, err := os.Stat(l.credentials); err != nil {
				l.gcsErr = fmt.Errorf("%w: %s", ErrCredentials, l.credentials)
				return
			}
			opts = append(opts, option.WithCredentialsFile(l.credentials))
		}
		// Detached from ctx: the client outlives this call.
		client, err := storage.NewClient(context.WithoutCancel(ctx), opts...)
		if err != nil {
			l.gcsErr = fmt.Errorf("failed to create storage client: %w", err)
			return
		}
		l.gcsClient = client
	})
	if l.gcsErr != nil {
		return nil, l.gcsErr
	}
	return gcsReader{client: l.gcsClient}, nil
}

// readAll reads r up to the size limit.
func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > l.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxSize)
	}
	return content, nil
}

type gcsReader struct {
	client *storage.Client
}

func (g gcsReader) NewObjectReader(ctx context.Context, bucket, object string) (io.ReadCloser, string, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", err
	}
	return r, r.Attrs.ContentType, nil
}
