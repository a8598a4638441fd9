package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/option"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/mmap"
)

func unavailable(err error, msg, id string) error {
	return nerrors.Wrap(err, nerrors.ErrorTypeSourceUnavailable, msg).WithDetail("source", id)
}

// Local files at least this large are read through a memory mapping.
const mmapThreshold = 1 << 20

// openFile opens a local file. Both "file:///abs/path" and bare paths arrive
// here with the path in u.Path; "file://rel/path" keeps the first element in
// u.Host.
func openFile(_ context.Context, u *url.URL) (*Resource, error) {
	p := u.Path
	if u.Host != "" {
		p = u.Host + p
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, unavailable(err, "source file does not exist", p)
		}
		return nil, unavailable(err, "failed to open source file", p)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, unavailable(err, "failed to stat source file", p)
	}
	if info.IsDir() {
		f.Close()
		return nil, nerrors.New(nerrors.ErrorTypeSourceUnavailable, "source is a directory").WithDetail("source", p)
	}

	if info.Mode().IsRegular() && info.Size() >= mmapThreshold {
		if m, err := mmap.FromFile(f); err == nil {
			return &Resource{Name: path.Base(p), Body: m}, nil
		}
	}
	return &Resource{Name: path.Base(p), Body: f}, nil
}

// s3Client is the subset of the S3 API used to download objects.
type s3Client = manager.DownloadAPIClient

// s3Opener downloads whole objects with the transfer manager. The query
// parameters region and endpoint override the SDK defaults; a custom
// endpoint switches to path-style addressing for S3-compatible stores.
type s3Opener struct {
	newClient func(ctx context.Context, region, endpoint string) (s3Client, error)
}

func newS3Opener() *s3Opener {
	return &s3Opener{newClient: defaultS3Client}
}

func defaultS3Client(ctx context.Context, region, endpoint string) (s3Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Open implements Opener.
func (o *s3Opener) Open(ctx context.Context, u *url.URL) (*Resource, error) {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, nerrors.New(nerrors.ErrorTypeSourceUnavailable, "s3 source needs s3://bucket/key").
			WithDetail("source", u.String())
	}

	q := u.Query()
	client, err := o.newClient(ctx, q.Get("region"), q.Get("endpoint"))
	if err != nil {
		return nil, unavailable(err, "failed to configure s3 client", u.String())
	}

	buf := manager.NewWriteAtBuffer(nil)
	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, unavailable(err, "s3 object does not exist", u.String())
		}
		return nil, unavailable(err, "failed to download s3 object", u.String())
	}

	return &Resource{
		Name: path.Base(key),
		Body: io.NopCloser(bytes.NewReader(buf.Bytes())),
	}, nil
}

// gcsOpener streams objects from Google Cloud Storage. The query parameter
// credentials names a service account key file; anonymous=true skips
// authentication for public buckets.
type gcsOpener struct{}

func newGCSOpener() *gcsOpener {
	return &gcsOpener{}
}

// Open implements Opener.
func (gcsOpener) Open(ctx context.Context, u *url.URL) (*Resource, error) {
	bucket, object := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return nil, nerrors.New(nerrors.ErrorTypeSourceUnavailable, "gcs source needs gs://bucket/object").
			WithDetail("source", u.String())
	}

	var opts []option.ClientOption
	q := u.Query()
	if creds := q.Get("credentials"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if q.Get("anonymous") == "true" {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, unavailable(err, "failed to create gcs client", u.String())
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, unavailable(err, "gcs object does not exist", u.String())
		}
		return nil, unavailable(err, "failed to open gcs object", u.String())
	}

	return &Resource{
		Name: path.Base(object),
		Body: &gcsBody{Reader: r, client: client},
	}, nil
}

type gcsBody struct {
	*storage.Reader
	client *storage.Client
}

func (b *gcsBody) Close() error {
	return errors.Join(b.Reader.Close(), b.client.Close())
}
