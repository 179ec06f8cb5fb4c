package s3_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/platform/s3"
	"github.com/imamik/hubspoke/internal/platform/s3/s3test"
)

func newTestClient(t *testing.T, endpoint string) *s3.Client {
	t.Helper()
	client, err := s3.NewClient(context.Background(), s3.Options{
		Endpoint:     endpoint,
		Region:       "us-east-1",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	return client
}

func TestClient_ObjectLifecycle(t *testing.T) {
	t.Parallel()
	srv := s3test.NewServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	exists, err := client.BucketExists(ctx, "deployments")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.EnsureBucket(ctx, "deployments"))
	require.NoError(t, client.EnsureBucket(ctx, "deployments"))

	require.NoError(t, client.PutObject(ctx, "deployments", "hubspoke/spokes/00001.json", []byte(`{"a":1}`)))
	require.NoError(t, client.PutObject(ctx, "deployments", "hubspoke/spokes/00002.json", []byte(`{"b":2}`)))
	require.NoError(t, client.PutObject(ctx, "deployments", "other/x.json", []byte(`{}`)))

	stored, ok := srv.Object("deployments", "hubspoke/spokes/00001.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(stored))

	data, err := client.GetObject(ctx, "deployments", "hubspoke/spokes/00002.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(data))

	keys, err := client.ListKeys(ctx, "deployments", "hubspoke/")
	require.NoError(t, err)
	assert.Equal(t, []string{"hubspoke/spokes/00001.json", "hubspoke/spokes/00002.json"}, keys)

	require.NoError(t, client.DeleteObject(ctx, "deployments", "hubspoke/spokes/00001.json"))
	_, err = client.GetObject(ctx, "deployments", "hubspoke/spokes/00001.json")
	assert.ErrorIs(t, err, s3.ErrNotFound)
}

func TestClient_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>AccessDenied</Code>
  <Message>Access Denied</Message>
</Error>`))
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	err := client.PutObject(ctx, "b", "k", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to put object k in bucket b")
	assert.NotErrorIs(t, err, s3.ErrNotFound)

	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())

	_, err = client.GetObject(ctx, "b", "k")
	assert.ErrorContains(t, err, "failed to get object k from bucket b")
}
