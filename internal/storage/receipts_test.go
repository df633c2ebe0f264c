package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBucketAndPath(t *testing.T) {
	cases := []struct {
		in     string
		bucket string
		path   string
	}{
		{"receipts:activities/u/b/line-1/r.pdf", "receipts", "activities/u/b/line-1/r.pdf"},
		{"engagements:contracts/ret-077.pdf", "engagements", "contracts/ret-077.pdf"},
		{"activities/u/b/line-1/r.pdf", "receipts", "activities/u/b/line-1/r.pdf"},
		// A colon after a slash is part of the path, not a bucket prefix.
		{"a/b:c/file.pdf", "receipts", "a/b:c/file.pdf"},
		{"  ", "receipts", ""},
		{":leading-colon", "receipts", ":leading-colon"},
	}
	for _, tc := range cases {
		bucket, path := SplitBucketAndPath(tc.in)
		assert.Equal(t, tc.bucket, bucket, tc.in)
		assert.Equal(t, tc.path, path, tc.in)
	}
}

func TestObjectPathSanitizesFilename(t *testing.T) {
	userID := uuid.New()
	batchID := uuid.New()

	prefix := "activities/" + userID.String() + "/" + batchID.String() + "/line-3/"
	p := ObjectPath(userID, batchID, 3, "../../etc/passwd")
	require.True(t, strings.HasPrefix(p, prefix))
	assert.NotContains(t, strings.TrimPrefix(p, prefix), "/",
		"slashes in the client filename must not create path segments")

	p = ObjectPath(userID, batchID, 1, "OR no. 4471 (March).pdf")
	assert.True(t, strings.HasSuffix(p, "-OR no. 4471 (March).pdf"))

	p = ObjectPath(userID, batchID, 1, "///")
	assert.True(t, strings.HasSuffix(p, "-receipt"), "empty name falls back")

	long := strings.Repeat("x", 200) + ".pdf"
	p = ObjectPath(userID, batchID, 1, long)
	name := p[strings.LastIndex(p, "/")+1:]
	idx := strings.Index(name, "-")
	require.Greater(t, idx, 0)
	assert.LessOrEqual(t, len(name[idx+1:]), 80)
}

func TestURLSignerRoundTrip(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080/")

	signed, err := signer.SignedURL("receipts", "activities/u/b/line-1/r.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "http://localhost:8080/api/receipts/view?token="))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	bucket, path, err := signer.Verify(u.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "receipts", bucket)
	assert.Equal(t, "activities/u/b/line-1/r.pdf", path)
}

func TestURLSignerRejectsExpiredAndForeignTokens(t *testing.T) {
	signer := NewURLSigner([]byte("test-secret"), "http://localhost:8080")

	signed, err := signer.SignedURL("receipts", "p", -time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(signed)
	_, _, err = signer.Verify(u.Query().Get("token"))
	assert.Error(t, err, "expired token must not verify")

	other := NewURLSigner([]byte("another-secret"), "http://localhost:8080")
	signed, err = other.SignedURL("receipts", "p", time.Minute)
	require.NoError(t, err)
	u, _ = url.Parse(signed)
	_, _, err = signer.Verify(u.Query().Get("token"))
	assert.Error(t, err, "token signed with a different secret must not verify")
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	ctx := context.Background()

	err := store.Upload(ctx, "receipts", "activities/u/b/line-1/r.pdf", strings.NewReader("receipt bytes"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, "receipts", "activities/u/b/line-1/r.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "receipt bytes", string(data))

	failed := store.Remove(ctx, "receipts", []string{"activities/u/b/line-1/r.pdf"})
	assert.Zero(t, failed)
	_, err = store.Open(ctx, "receipts", "activities/u/b/line-1/r.pdf")
	assert.Error(t, err)

	// Removing something already gone is not a failure.
	failed = store.Remove(ctx, "receipts", []string{"activities/u/b/line-1/r.pdf"})
	assert.Zero(t, failed)
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	ctx := context.Background()

	err := store.Upload(ctx, "receipts", "../outside.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = store.Open(ctx, "receipts", "../../etc/passwd")
	assert.Error(t, err)
}
