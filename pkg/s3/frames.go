package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

var (
	ErrEmptyClip      = errors.New("no frames stored under clip prefix")
	ErrNoFrameBefore  = errors.New("no stored frame at or before timestamp")
	ErrInvalidClipKey = errors.New("clip key is outside the clip root")
	ErrFrameTooLarge  = errors.New("stored frame exceeds the size limit")
)

const (
	// ClipRoot is the only bucket prefix stored clips may be read from.
	ClipRoot = "clips/"
	// MaxFrameBytes matches the upload limit for a single frame.
	MaxFrameBytes = 5 * 1024 * 1024
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type storedFrame struct {
	offset time.Duration
	key    string
}

// FrameSource serves a stored clip laid out as <prefix>/<milliseconds>.<ext>.
type FrameSource struct {
	client s3iface.S3API
	bucket string
	frames []storedFrame
}

// CleanClipKey normalizes a client supplied clip key into a listing prefix
// below ClipRoot.
func CleanClipKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidClipKey
	}
	cleaned := path.Clean(key)
	if !strings.HasPrefix(cleaned, ClipRoot) || cleaned == strings.TrimSuffix(ClipRoot, "/") {
		return "", ErrInvalidClipKey
	}
	return cleaned + "/", nil
}

func (s *s3Client) OpenClip(ctx context.Context, key string) (*FrameSource, error) {
	prefix, err := CleanClipKey(key)
	if err != nil {
		return nil, err
	}

	var frames []storedFrame
	err = s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if f, ok := parseFrameKey(aws.StringValue(obj.Key)); ok {
				frames = append(frames, f)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list clip %s: %w", prefix, err)
	}
	if len(frames) == 0 {
		return nil, ErrEmptyClip
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].offset < frames[j].offset })

	return &FrameSource{client: s.client, bucket: s.bucketName, frames: frames}, nil
}

func parseFrameKey(key string) (storedFrame, bool) {
	base := path.Base(key)
	ext := strings.ToLower(path.Ext(base))
	if !frameExtensions[ext] {
		return storedFrame{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSuffix(base, path.Ext(base)), 10, 64)
	if err != nil || ms < 0 {
		return storedFrame{}, false
	}
	return storedFrame{offset: time.Duration(ms) * time.Millisecond, key: key}, true
}

// Len is the number of frames in the clip.
func (f *FrameSource) Len() int {
	return len(f.frames)
}

// FrameAt downloads the latest frame stored at or before t.
func (f *FrameSource) FrameAt(ctx context.Context, t time.Duration) ([]byte, error) {
	i := sort.Search(len(f.frames), func(i int) bool { return f.frames[i].offset > t }) - 1
	if i < 0 {
		return nil, ErrNoFrameBefore
	}

	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.frames[i].key),
	})
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", f.frames[i].key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", f.frames[i].key, err)
	}
	if len(data) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %s", ErrFrameTooLarge, f.frames[i].key)
	}
	return data, nil
}
