package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient creates a Client backed by a test HTTP server speaking the S3
// XML protocol.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       "eu-central",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		HTTPClient:   &http.Client{Transport: &http.Transport{}},
	})
	return &Client{s3: client}
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

const (
	noSuchKeyXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`
	internalErrorXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>InternalError</Code><Message>Internal Error</Message></Error>`
	accessDeniedXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`
	alreadyOwnedXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>BucketAlreadyOwnedByYou</Code><Message>owned</Message><BucketName>state</BucketName></Error>`
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), Config{
		Endpoint:     "http://127.0.0.1:9000",
		Region:       "us-east-1",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", client.s3.Options().Region)
	assert.True(t, client.s3.Options().UsePathStyle)
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		gotBody     []byte
		contentType string
	)
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		gotBody, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.PutObject(context.Background(), "state", "p1.json", []byte(`{"planId":"p1"}`)))

	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"planId":"p1"}`, string(gotBody))
	assert.Equal(t, "application/json", contentType)
}

func TestPutObjectError(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		xmlResponse(w, http.StatusInternalServerError, internalErrorXML)
	}))

	err := client.PutObject(context.Background(), "state", "p1.json", []byte("{}"))
	assert.ErrorContains(t, err, "failed to put object p1.json in bucket state")
}

func TestGetObject(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/state/missing.json" {
			xmlResponse(w, http.StatusNotFound, noSuchKeyXML)
			return
		}
		if r.URL.Path == "/state/broken.json" {
			xmlResponse(w, http.StatusForbidden, accessDeniedXML)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	ctx := context.Background()

	data, err := client.GetObject(ctx, "state", "p1.json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = client.GetObject(ctx, "state", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetObject(ctx, "state", "broken.json")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.ErrorContains(t, err, "failed to get object broken.json from bucket state")
}

func TestDeleteObject(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/state/p1.json" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		xmlResponse(w, http.StatusInternalServerError, internalErrorXML)
	}))

	require.NoError(t, client.DeleteObject(context.Background(), "state", "p1.json"))
	assert.ErrorContains(t, client.DeleteObject(context.Background(), "state", "other.json"),
		"failed to delete object other.json from bucket state")
}

func TestEnsureBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		headStatus  int
		putStatus   int
		putBody     string
		wantCreated bool
		wantErr     string
	}{
		{name: "exists", headStatus: http.StatusOK},
		{name: "created", headStatus: http.StatusNotFound, putStatus: http.StatusOK, wantCreated: true},
		{name: "already owned", headStatus: http.StatusNotFound, putStatus: http.StatusConflict, putBody: alreadyOwnedXML, wantCreated: true},
		{name: "create denied", headStatus: http.StatusNotFound, putStatus: http.StatusForbidden, putBody: accessDeniedXML, wantCreated: true, wantErr: "failed to create bucket state"},
		{name: "head denied", headStatus: http.StatusForbidden, wantErr: "failed to check bucket state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			created := false
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodHead:
					w.WriteHeader(tt.headStatus)
				case http.MethodPut:
					mu.Lock()
					created = true
					mu.Unlock()
					if tt.putBody != "" {
						xmlResponse(w, tt.putStatus, tt.putBody)
						return
					}
					w.WriteHeader(tt.putStatus)
				}
			}))

			err := client.EnsureBucket(context.Background(), "state")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantCreated, created)
		})
	}
}

func TestIsNotFoundErrorNil(t *testing.T) {
	t.Parallel()
	assert.False(t, isNotFoundError(nil))
	assert.False(t, isBucketAlreadyOwnedByYou(nil))
}
