package r2client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.StartAfter) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	api := newFakeS3()
	c, err := newClient(api, "archive")
	require.NoError(t, err)
	return c, api
}

func TestClient_PutGet(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	ctx := context.Background()
	doc := []byte(strings.Repeat(`{"name":"2-204","slots":{"1":{"groups":["КН-21"]}}}`, 200))

	etag, err := c.Put(ctx, "occupancy/2024-03-11/a.json.zst", doc, "application/json")
	require.NoError(t, err)
	assert.Equal(t, "etag-1", etag)

	require.Len(t, api.puts, 1)
	in := api.puts[0]
	assert.Equal(t, "archive", aws.ToString(in.Bucket))
	assert.Equal(t, "zstd", aws.ToString(in.ContentEncoding))
	assert.Equal(t, fmt.Sprint(len(doc)), in.Metadata[metaRawBytes])
	assert.Less(t, len(api.objects["occupancy/2024-03-11/a.json.zst"]), len(doc)/4)

	got, err := c.Get(ctx, "occupancy/2024-03-11/a.json.zst")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestClient_GetMissing(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_GetCorrupt(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	api.objects["bad"] = []byte("not zstd data")

	_, err := c.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_GetError(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	api.getErr = &smithy.GenericAPIError{Code: "AccessDenied"}

	_, err := c.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestClient_ListKeysPages(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	for _, k := range []string{"occ/2024-03-11/c", "occ/2024-03-11/a", "occ/2024-03-11/b", "occ/2024-03-12/a", "other/x"} {
		api.objects[k] = nil
	}

	keys, err := c.ListKeys(context.Background(), "occ/2024-03-11/")
	require.NoError(t, err)
	assert.Equal(t, []string{"occ/2024-03-11/a", "occ/2024-03-11/b", "occ/2024-03-11/c"}, keys)
}

func TestNew_RequiresAllFields(t *testing.T) {
	t.Parallel()
	for _, cfg := range []Config{
		{},
		{AccessKeyID: "a", SecretKey: "s", BucketName: "b"},
		{Endpoint: "https://x", AccessKeyID: "a", SecretKey: "s"},
	} {
		_, err := New(context.Background(), cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestEndpointForAccount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com", EndpointForAccount("abc123"))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", &types.NoSuchKey{}, true},
		{"NotFound", &types.NotFound{}, true},
		{"api error code", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"http 404", &smithyhttp.ResponseError{Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 404}}}, true},
		{"wrapped", fmt.Errorf("get: %w", &types.NoSuchKey{}), true},
		{"other api error", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestCodec_Concurrent(t *testing.T) {
	t.Parallel()
	codec, err := NewCodec()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			doc := []byte(strings.Repeat(fmt.Sprintf("room-%d;", i), 100))
			got, err := codec.Decompress(codec.Compress(doc))
			assert.NoError(t, err)
			assert.Equal(t, doc, got)
		})
	}
	wg.Wait()
}
