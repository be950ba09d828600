package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/janelia-flyem/voltasks/volume"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// Ref is a parsed storage reference of the form <scheme>://<bucket>/<key>.
type Ref struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseRef splits a storage reference into scheme, bucket and key.  The key may
// be empty.  For "file" references, the bucket is empty and the key is the
// local path.
func ParseRef(ref volume.StorageRef) (Ref, error) {
	s := string(ref)
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Ref{}, fmt.Errorf("storage reference %q has no scheme", s)
	}
	r := Ref{Scheme: parts[0]}
	if r.Scheme == "file" {
		r.Key = parts[1]
		if r.Key == "" {
			return Ref{}, fmt.Errorf("file reference %q has no path", s)
		}
		return r, nil
	}
	pathParts := strings.SplitN(parts[1], "/", 2)
	r.Bucket = pathParts[0]
	if r.Bucket == "" {
		return Ref{}, fmt.Errorf("storage reference %q has no bucket", s)
	}
	if len(pathParts) == 2 {
		r.Key = strings.Trim(pathParts[1], "/")
	}
	return r, nil
}

func (r Ref) String() string {
	if r.Key == "" {
		return fmt.Sprintf("%s://%s", r.Scheme, r.Bucket)
	}
	if r.Scheme == "file" {
		return "file://" + r.Key
	}
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Bucket, r.Key)
}

// OpenBucket returns a blob.Bucket rooted at the key of the given reference.
// The reference should be of the form:
//
//	gs://<bucketname>/<prefix>
//	s3://<bucketname>/<prefix>
//	vast://<endpoint>/<bucketname>
//	file:///<local directory>
//	mem://<name>
//
// Memory buckets are not shared between calls.
func OpenBucket(ctx context.Context, ref volume.StorageRef) (bucket *blob.Bucket, err error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	switch r.Scheme {
	case "gs", "gcs":
		// Default to Google credentials as found by
		// https://cloud.google.com/docs/authentication/production
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, err
		}
		bucket, err = gcsblob.OpenBucket(ctx, client, r.Bucket, nil)
		if err != nil {
			volume.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}

	case "s3":
		// Requires AWS credentials findable by gocloud and the AWS_REGION
		// environment variable.
		bucket, err = blob.OpenBucket(ctx, "s3://"+r.Bucket)
		if err != nil {
			volume.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}

	case "vast":
		// VAST S3-compatible storage where the "bucket" part of the reference is
		// the endpoint and the first key element is the bucket name.
		// AWS_REGION must be set but is ignored.
		keyParts := strings.SplitN(r.Key, "/", 2)
		if keyParts[0] == "" {
			return nil, fmt.Errorf("vast ref must be of form 'vast://<endpoint>/<bucket>'")
		}
		url := fmt.Sprintf("s3://%s?endpoint=%s&s3ForcePathStyle=true", keyParts[0], r.Bucket)
		bucket, err = blob.OpenBucket(ctx, url)
		if err != nil {
			volume.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
		r.Key = ""
		if len(keyParts) == 2 {
			r.Key = keyParts[1]
		}

	case "file":
		if err := os.MkdirAll(r.Key, 0755); err != nil {
			return nil, err
		}
		return fileblob.OpenBucket(r.Key, nil)

	case "mem":
		bucket = memblob.OpenBucket(nil)

	default:
		return nil, fmt.Errorf("unsupported storage scheme %q in %q", r.Scheme, ref)
	}
	if r.Key != "" {
		bucket = blob.PrefixedBucket(bucket, r.Key+"/")
	}
	return bucket, nil
}
