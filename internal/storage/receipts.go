// Package storage adapts the binary object store that holds receipt and
// engagement files. Attachment references are opaque strings of the form
// "bucket:path" or just "path" (defaulting to the receipts bucket); reads go
// through short-lived signed URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultBucket = "receipts"

// ObjectStore is the external binary store the engine uploads receipts to.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader) error
	Open(ctx context.Context, bucket, path string) (io.ReadCloser, error)
	// Remove deletes objects best-effort and returns the number it failed on.
	Remove(ctx context.Context, bucket string, paths []string) int
}

// SplitBucketAndPath parses an opaque attachment reference. A "bucket:path"
// prefix is honored only when the bucket half contains no slash; everything
// else is a bare path in the default bucket.
func SplitBucketAndPath(raw string) (bucket, path string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBucket, ""
	}
	if idx := strings.Index(raw, ":"); idx > 0 && !strings.Contains(raw[:idx], "/") {
		return raw[:idx], raw[idx+1:]
	}
	return DefaultBucket, raw
}

var unsafeNameChars = regexp.MustCompile(`[^\w.\-() ]+`)

// ObjectPath builds the storage path for one uploaded receipt, scoped by
// uploader, batch and line so draft deletion can clean up per row. Unsafe
// characters are stripped from the client filename; an all-unsafe name falls
// back to "receipt".
func ObjectPath(userID, batchID uuid.UUID, lineNo int, filename string) string {
	name := unsafeNameChars.ReplaceAllString(filename, "")
	if name == "" {
		name = "receipt"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return fmt.Sprintf("activities/%s/%s/line-%d/%d-%s", userID, batchID, lineNo, time.Now().UnixMilli(), name)
}

// --- Signed read URLs ---

type urlClaims struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	jwt.RegisteredClaims
}

// URLSigner issues and verifies the time-limited tokens behind signed read
// URLs.
type URLSigner struct {
	secret  []byte
	baseURL string
}

func NewURLSigner(secret []byte, baseURL string) *URLSigner {
	return &URLSigner{secret: secret, baseURL: strings.TrimRight(baseURL, "/")}
}

// SignedURL returns a URL from which the object can be read until the TTL
// elapses.
func (s *URLSigner) SignedURL(bucket, path string, ttl time.Duration) (string, error) {
	claims := urlClaims{
		Bucket: bucket,
		Path:   path,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt url: %w", err)
	}
	return s.baseURL + "/api/receipts/view?token=" + token, nil
}

// Verify validates a signed-read token and returns the object it grants.
func (s *URLSigner) Verify(tokenString string) (bucket, path string, err error) {
	var claims urlClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid receipt token: %w", err)
	}
	return claims.Bucket, claims.Path, nil
}

// --- Disk-backed store ---

// DiskStore keeps objects under root/bucket/path. It stands in for the
// remote object store in single-node deployments and tests.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (d *DiskStore) fullPath(bucket, path string) (string, error) {
	full := filepath.Join(d.root, bucket, filepath.FromSlash(path))
	// Reject traversal out of the bucket root.
	base := filepath.Join(d.root, bucket)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) && full != base {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return full, nil
}

func (d *DiskStore) Upload(ctx context.Context, bucket, path string, r io.Reader) error {
	full, err := d.fullPath(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

func (d *DiskStore) Open(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	full, err := d.fullPath(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func (d *DiskStore) Remove(ctx context.Context, bucket string, paths []string) int {
	failed := 0
	for _, p := range paths {
		full, err := d.fullPath(bucket, p)
		if err != nil {
			failed++
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			failed++
		}
	}
	return failed
}
