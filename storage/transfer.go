package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/voltasks/volume"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// PushFile copies a local file into the bucket under the given key and returns
// the number of bytes written.
func PushFile(ctx context.Context, bucket *blob.Bucket, localName, key string) (int64, error) {
	f, err := os.Open(localName)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("unable to write object %q: %w", key, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("unable to copy %q to object %q: %w", localName, key, err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("unable to close object %q: %w", key, err)
	}
	volume.Debugf("Pushed %s to object %q (%s)\n", localName, key, humanize.Bytes(uint64(n)))
	return n, nil
}

// PushDir copies the regular files directly within localDir into the bucket
// under <prefix>/<base name of localDir>/.  Subdirectories are not copied.
// The written keys are returned in directory order.
func PushDir(ctx context.Context, bucket *blob.Bucket, localDir, prefix string) ([]string, error) {
	timedLog := volume.NewTimeLog()
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, err
	}
	dirKey := path.Join(prefix, filepath.Base(filepath.Clean(localDir)))
	var keys []string
	var total int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		key := path.Join(dirKey, entry.Name())
		n, err := PushFile(ctx, bucket, filepath.Join(localDir, entry.Name()), key)
		if err != nil {
			return keys, err
		}
		total += n
		keys = append(keys, key)
	}
	timedLog.Infof("Pushed %d files (%s) from %s to %q", len(keys), humanize.Bytes(uint64(total)), localDir, dirKey)
	return keys, nil
}

// PullFile copies an object into localDir using the key's base name and
// returns the local file name.  ErrNotFound is returned if the object does not
// exist.
func PullFile(ctx context.Context, bucket *blob.Bucket, key, localDir string) (string, error) {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", fmt.Errorf("pull of %q: %w", key, ErrNotFound)
		}
		return "", err
	}
	defer r.Close()

	localName := filepath.Join(localDir, path.Base(key))
	f, err := os.Create(localName)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("unable to copy object %q to %s: %w", key, localName, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	volume.Debugf("Pulled object %q to %s (%s)\n", key, localName, humanize.Bytes(uint64(n)))
	return localName, nil
}

// PullDir copies every object directly under prefix into
// <localDir>/<base name of prefix>/, flattening object names to their base
// names.  Nested prefixes are skipped.  The local file names are returned.
func PullDir(ctx context.Context, bucket *blob.Bucket, prefix, localDir string) ([]string, error) {
	timedLog := volume.NewTimeLog()
	prefix = strings.Trim(prefix, "/")
	targetDir := filepath.Join(localDir, path.Base(prefix))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, err
	}
	listPrefix := prefix + "/"
	if prefix == "" {
		listPrefix = ""
	}
	iter := bucket.List(&blob.ListOptions{Prefix: listPrefix, Delimiter: "/"})
	var fnames []string
	var total int64
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fnames, err
		}
		if obj.IsDir {
			continue
		}
		fname, err := PullFile(ctx, bucket, obj.Key, targetDir)
		if err != nil {
			return fnames, err
		}
		total += obj.Size
		fnames = append(fnames, fname)
	}
	timedLog.Infof("Pulled %d objects (%s) from %q to %s", len(fnames), humanize.Bytes(uint64(total)), prefix, targetDir)
	return fnames, nil
}
