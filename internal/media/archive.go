package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrArchiveMissing means the archive has no object at the recorded path.
var ErrArchiveMissing = errors.New("archive object not found")

// Archive is the cold storage a working copy can be rehydrated from.
type Archive interface {
	Fetch(ctx context.Context, archivePath, destPath string) error
}

// LocalArchive serves archive copies from a mounted directory.
type LocalArchive struct {
	root string
}

func NewLocalArchive(root string) *LocalArchive {
	return &LocalArchive{root: root}
}

func (a *LocalArchive) Fetch(_ context.Context, archivePath, destPath string) error {
	src := filepath.Join(a.root, filepath.Clean("/"+archivePath))
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrArchiveMissing
		}
		return err
	}
	defer in.Close()
	return writeAtomic(destPath, in)
}

// S3Archive pulls archive copies from an S3-compatible bucket.
type S3Archive struct {
	client *s3.S3
	bucket string
}

func NewS3Archive(endpoint, region, bucket, accessKey, secretKey string) (*S3Archive, error) {
	config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &S3Archive{client: s3.New(sess), bucket: bucket}, nil
}

func (a *S3Archive) Fetch(ctx context.Context, archivePath, destPath string) error {
	key := strings.TrimPrefix(archivePath, "/")
	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return ErrArchiveMissing
		}
		return err
	}
	defer out.Body.Close()
	return writeAtomic(destPath, out.Body)
}

// writeAtomic streams into a temp file next to dest and renames it into
// place, so the feed builder never sees a half-written working copy.
func writeAtomic(destPath string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".rehydrate-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	log.Debug().Str("dest", destPath).Msg("archive copy restored")
	return nil
}
