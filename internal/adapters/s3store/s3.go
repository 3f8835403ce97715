package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/charmbracelet/log"

	"reelrelay/internal/core/ports"
)

// maxPresignExpiry is the SigV4 limit for presigned URLs.
const maxPresignExpiry = 7 * 24 * time.Hour

// API is the subset of *s3.Client used by Store.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by Store.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures a Store.
type Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // S3-compatible endpoint, implies path-style addressing

	// Link selection, first match wins: PublicBaseURL, PresignExpiry, then
	// the virtual-hosted object URL (requires PublicRead or a bucket policy).
	PublicBaseURL string
	PresignExpiry time.Duration
	PublicRead    bool
}

// Store implements ports.ArtifactStore on an S3 bucket. Folders are key
// prefixes marked with an empty "<prefix>/" object.
type Store struct {
	api     API
	presign Presigner
	opts    Options
	logger  *log.Logger
}

// New loads the default AWS credential chain and builds a Store.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket not set")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	if opts.Region == "" {
		opts.Region = cfg.Region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, s3.NewPresignClient(client), opts, logger), nil
}

// NewWithClient wraps existing clients. presign may be nil when presigned
// links are not used.
func NewWithClient(api API, presign Presigner, opts Options, logger *log.Logger) *Store {
	if opts.PresignExpiry > maxPresignExpiry {
		opts.PresignExpiry = maxPresignExpiry
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	return &Store{api: api, presign: presign, opts: opts, logger: logger}
}

// ResolveOrCreateFolder returns the key prefix for name, writing its marker
// object when nothing lives under it yet.
func (s *Store) ResolveOrCreateFolder(ctx context.Context, name string) (ports.Folder, error) {
	if name == "" || strings.Contains(name, "/") {
		return ports.Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	prefix := path.Join(s.opts.Prefix, name) + "/"

	list, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return ports.Folder{}, fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(list.Contents) > 0 {
		return ports.Folder{Name: name, ID: prefix}, nil
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(prefix),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return ports.Folder{}, fmt.Errorf("create %s: %w", prefix, err)
	}
	s.logger.Info("created s3 folder", "bucket", s.opts.Bucket, "prefix", prefix)
	return ports.Folder{Name: name, ID: prefix}, nil
}

// Upload puts localPath under the folder prefix and returns its link.
func (s *Store) Upload(ctx context.Context, localPath string, folder ports.Folder, remoteName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := folder.ID + remoteName
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	}
	if s.opts.PublicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.link(ctx, key)
}

func (s *Store) link(ctx context.Context, key string) (string, error) {
	switch {
	case s.opts.PublicBaseURL != "":
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + escapeKey(key), nil
	case s.opts.PresignExpiry > 0 && s.presign != nil:
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.opts.PresignExpiry))
		if err != nil {
			return "", fmt.Errorf("presign %s: %w", key, err)
		}
		return req.URL, nil
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, escapeKey(key)), nil
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
