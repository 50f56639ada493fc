// Package invoke implements the client side of the local invocation
// protocol: wait for the container's runtime endpoint to accept
// connections, POST the event, classify the response and forward it to the
// caller's sink.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"funcbox/internal/config"
	"funcbox/internal/streamio"
)

// DefaultConnectionTimeout bounds the socket-readiness wait when the
// caller does not configure one.
const DefaultConnectionTimeout = 20 * time.Second

const (
	// connectTimeout bounds the connect phase of each invoke attempt. The
	// read phase is deliberately unbounded: invocations may run
	// arbitrarily long, and upper bounds are the caller timer's job.
	connectTimeout = 1 * time.Second

	maxAttempts  = 3
	retryDelay   = 1 * time.Second
	pollInterval = 100 * time.Millisecond

	invocationURLFormat = "http://%s/2015-03-31/functions/%s/invocations"
)

// TimerFunc starts an externally owned deadline and returns its cancel
// handle. The invocation flow guarantees cancel is called on every exit
// path.
type TimerFunc func() (cancel func())

// ResponseError indicates the invoke endpoint could not produce a usable
// response after all transport attempts were exhausted.
type ResponseError struct {
	cause error
}

func (e *ResponseError) Error() string {
	if e.cause == nil {
		return "no response from invoke container"
	}
	return fmt.Sprintf("no response from invoke container: %v", e.cause)
}

func (e *ResponseError) Unwrap() error { return e.cause }

// ConnectionTimeoutError indicates the container's endpoint never accepted
// a connection within the configured window.
type ConnectionTimeoutError struct {
	Timeout time.Duration
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf(
		"timed out while attempting to establish a connection to the container; "+
			"you can increase this timeout by setting the %s environment variable "+
			"(current value: %s)",
		config.EnvContainerConnectionTimeout, e.Timeout,
	)
}

// Client talks to one container's invoke endpoint.
type Client struct {
	host              string
	port              int
	connectionTimeout time.Duration
	httpClient        *http.Client
}

// NewClient builds a client for the endpoint at host:port. A zero
// connectionTimeout uses DefaultConnectionTimeout.
func NewClient(host string, port int, connectionTimeout time.Duration) *Client {
	if connectionTimeout <= 0 {
		connectionTimeout = DefaultConnectionTimeout
	}

	return &Client{
		host:              host,
		port:              port,
		connectionTimeout: connectionTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// WaitForResult runs one invocation: wait for the endpoint socket, POST
// the event, classify the response and write it to the stdout sink. No
// POST is attempted when the socket never becomes reachable.
func (c *Client) WaitForResult(ctx context.Context, event []byte, functionName string, stdout *streamio.StreamWriter) error {
	if err := c.waitForConnection(ctx); err != nil {
		return err
	}

	body, contentType, err := c.post(ctx, event, functionName)
	if err != nil {
		return err
	}

	return forwardResult(body, contentType, stdout)
}

// waitForConnection polls the endpoint until a TCP connect succeeds or the
// configured window lapses.
func (c *Client) waitForConnection(ctx context.Context) error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	deadline := time.Now().Add(c.connectionTimeout)

	for {
		if time.Now().After(deadline) {
			return &ConnectionTimeoutError{Timeout: c.connectionTimeout}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := net.DialTimeout("tcp", addr, pollInterval)
		if err == nil {
			conn.Close()
			log.Debug("container endpoint reachable", "addr", addr)
			return nil
		}

		time.Sleep(pollInterval)
	}
}

// post sends the invocation event, retrying transport-level failures a
// fixed number of times.
func (c *Client) post(ctx context.Context, event []byte, functionName string) ([]byte, string, error) {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	url := fmt.Sprintf(invocationURLFormat, addr, functionName)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, contentType, err := c.postOnce(ctx, url, event)
		if err == nil {
			return body, contentType, nil
		}

		lastErr = err
		log.Debug("invoke attempt failed", "attempt", attempt, "url", url, "error", err)
		if attempt < maxAttempts {
			time.Sleep(retryDelay)
		}
	}

	return nil, "", &ResponseError{cause: lastErr}
}

func (c *Client) postOnce(ctx context.Context, url string, event []byte) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(event))
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// forwardResult writes the response to the stdout sink: binary image
// payloads pass through as raw bytes; JSON bodies are compacted on the
// raw text, which keeps numbers, key order and non-ASCII characters
// intact; everything else is forwarded as UTF-8 text.
func forwardResult(body []byte, contentType string, stdout *streamio.StreamWriter) error {
	if strings.HasPrefix(contentType, "image") {
		return stdout.WriteBytes(body)
	}

	if json.Valid(body) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err == nil {
			return stdout.WriteString(buf.String())
		}
	}

	return stdout.WriteString(string(body))
}
