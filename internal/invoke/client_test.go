package invoke

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funcbox/internal/streamio"
)

func clientForServer(t *testing.T, server *httptest.Server, connectionTimeout time.Duration) *Client {
	t.Helper()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return NewClient(host, port, connectionTimeout)
}

func TestWaitForResult_PostsEventToFunctionEndpoint(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := clientForServer(t, server, time.Second)

	var stdout bytes.Buffer
	err := client.WaitForResult(context.Background(), []byte(`{"key":"value"}`), "myfunction",
		streamio.NewStreamWriter(&stdout))
	require.NoError(t, err)

	assert.Equal(t, "/2015-03-31/functions/myfunction/invocations", gotPath)
	assert.Equal(t, []byte(`{"key":"value"}`), gotBody)
	assert.Equal(t, `{"ok":true}`, stdout.String())
}

func TestWaitForResult_RetriesTransportFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		// Drop the connection mid-request so the client sees a transport
		// error rather than an HTTP response.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	client := clientForServer(t, server, time.Second)

	err := client.WaitForResult(context.Background(), []byte("{}"), "function", nil)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestWaitForResult_ConnectionTimeout(t *testing.T) {
	// Reserve a port with no listener so connects are refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	client := NewClient("127.0.0.1", port, 300*time.Millisecond)

	err = client.WaitForResult(context.Background(), []byte("{}"), "function", nil)

	var timeoutErr *ConnectionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 300*time.Millisecond, timeoutErr.Timeout)
	assert.Contains(t, err.Error(), "FUNCBOX_CONTAINER_CONNECTION_TIMEOUT")
}

func TestWaitForResult_CanceledContextStopsWaiting(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("127.0.0.1", port, 10*time.Second)
	err = client.WaitForResult(ctx, []byte("{}"), "function", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_DefaultsConnectionTimeout(t *testing.T) {
	assert.Equal(t, DefaultConnectionTimeout, NewClient("localhost", 1234, 0).connectionTimeout)
	assert.Equal(t, DefaultConnectionTimeout, NewClient("localhost", 1234, -time.Second).connectionTimeout)
	assert.Equal(t, time.Minute, NewClient("localhost", 1234, time.Minute).connectionTimeout)
}

func TestForwardResult(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        []byte
	}{
		{
			name:        "image payload passes through as raw bytes",
			body:        []byte{0xff, 0xd8, 0xff, 0xab},
			contentType: "image/jpeg",
			want:        []byte{0xff, 0xd8, 0xff, 0xab},
		},
		{
			name:        "json is re-serialized compactly",
			body:        []byte(`{ "hello" : "world" }`),
			contentType: "text",
			want:        []byte(`{"hello":"world"}`),
		},
		{
			name:        "html characters stay unescaped",
			body:        []byte(`{"tag":"<b>&</b>"}`),
			contentType: "application/json",
			want:        []byte(`{"tag":"<b>&</b>"}`),
		},
		{
			name:        "non-ascii characters are preserved",
			body:        []byte(`{"msg":"héllo wörld"}`),
			contentType: "text",
			want:        []byte(`{"msg":"héllo wörld"}`),
		},
		{
			name:        "large integers keep full precision",
			body:        []byte(`{"id": 12345678901234567890}`),
			contentType: "text",
			want:        []byte(`{"id":12345678901234567890}`),
		},
		{
			name:        "key order is preserved",
			body:        []byte(`{"z": 1, "a": 2}`),
			contentType: "text",
			want:        []byte(`{"z":1,"a":2}`),
		},
		{
			name:        "non-json passes through verbatim",
			body:        []byte("non-json-deserializable"),
			contentType: "text/plain",
			want:        []byte("non-json-deserializable"),
		},
		{
			name:        "empty body passes through",
			body:        nil,
			contentType: "text/plain",
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			require.NoError(t, forwardResult(tt.body, tt.contentType, streamio.NewStreamWriter(&stdout)))
			assert.Equal(t, string(tt.want), stdout.String())
		})
	}
}
