// Package http implements core.Channel over the engine server's HTTP/JSON
// protocol.
//
// Request bodies are assembled with sjson so that field order follows the
// model's templates; replies are read with gjson and decoded through the
// core type boundary against the schema fetched from GET /version.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/logging"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 60 * time.Second

// ErrProcessExited is returned once the engine process behind the channel
// has gone away.
var ErrProcessExited = errors.New("engine process exited")

// Options configures a Channel.
type Options struct {
	// Client sends the requests. Defaults to a client without its own
	// timeout; Timeout applies per request instead.
	Client *http.Client

	// Timeout bounds every request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Done is closed when the engine process exits, so requests fail fast
	// instead of waiting for the timeout.
	Done <-chan struct{}

	Clock  clock.Clock
	Logger logging.Logger
}

// Channel talks to one engine server. It is safe for concurrent use; the
// server handles requests in arrival order.
type Channel struct {
	base   *url.URL
	client *http.Client
	opts   Options
	clock  clock.Clock
	logger logging.Logger

	mu     sync.Mutex
	schema *core.Schema

	closeOnce sync.Once
	closeErr  error
}

// New returns a Channel for the server at endpoint, e.g. "http://127.0.0.1:51150".
func New(endpoint string, optFns ...func(o *Options)) (*Channel, error) {
	opts := Options{
		Timeout: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Channel{
		base:   base,
		client: client,
		opts:   opts,
		clock:  clock.OrReal(opts.Clock),
		logger: logging.Scoped(logging.OrNoOp(opts.Logger), "transport", base.Host),
	}, nil
}

// Endpoint returns the server's base URL.
func (c *Channel) Endpoint() string { return c.base.String() }

// Schema implements core.Channel. The first successful reply is cached and
// used to decode every later reply.
func (c *Channel) Schema(ctx context.Context) (*core.Schema, error) {
	c.mu.Lock()
	cached := c.schema
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	body, err := c.do(ctx, "schema", http.MethodGet, "/version", nil, nil)
	if err != nil {
		return nil, err
	}
	schema, err := core.DecodeSchema(gjson.ParseBytes(body))
	if err != nil {
		return nil, core.NewTransportError("schema", fmt.Errorf("decode schema: %w", err))
	}
	schema.Normalize()

	c.mu.Lock()
	c.schema = schema
	c.mu.Unlock()
	return schema, nil
}

// Reset implements core.Channel.
func (c *Channel) Reset(ctx context.Context, req core.ResetRequest) error {
	body, err := document(
		member{"configuration", req.Configuration},
		member{"engine_settings", req.EngineSettings},
	)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "reset", http.MethodPut, "/rl", nil, body)
	return err
}

// Act implements core.Channel.
func (c *Channel) Act(ctx context.Context, action *core.Space) error {
	body, err := document(member{"action", action})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "action", http.MethodPatch, "/rl", nil, body)
	return err
}

// Status implements core.Channel.
func (c *Channel) Status(ctx context.Context) (core.Status, error) {
	schema, err := c.Schema(ctx)
	if err != nil {
		return core.Status{}, err
	}
	body, err := c.do(ctx, "status", http.MethodGet, "/status", nil, nil)
	if err != nil {
		return core.Status{}, err
	}
	st, err := core.DecodeStatus(schema.Observation, gjson.ParseBytes(body))
	if err != nil {
		return core.Status{}, core.NewTransportError("status", fmt.Errorf("decode status: %w", err))
	}
	return st, nil
}

// Outputs implements core.Channel. Names are sent as repeated query values.
func (c *Channel) Outputs(ctx context.Context, names []string) (*core.Space, error) {
	schema, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return core.NewSpace(schema.Outputs).Freeze(), nil
	}
	q := url.Values{}
	for _, n := range names {
		q.Add("names", n)
	}
	body, err := c.do(ctx, "outputs", http.MethodGet, "/outputs", q, nil)
	if err != nil {
		return nil, err
	}
	out, err := core.DecodeOutputs(schema.Outputs, names, gjson.GetBytes(body, "model_datas"))
	if err != nil {
		return nil, core.NewTransportError("outputs", fmt.Errorf("decode outputs: %w", err))
	}
	return out, nil
}

// Engine implements core.Channel.
func (c *Channel) Engine(ctx context.Context) (core.EngineInfo, error) {
	schema, err := c.Schema(ctx)
	if err != nil {
		return core.EngineInfo{}, err
	}
	body, err := c.do(ctx, "engine", http.MethodGet, "/engine", nil, nil)
	if err != nil {
		return core.EngineInfo{}, err
	}
	info, err := core.DecodeEngineInfo(schema.EngineSettings, gjson.ParseBytes(body))
	if err != nil {
		return core.EngineInfo{}, core.NewTransportError("engine", fmt.Errorf("decode engine info: %w", err))
	}
	return info, nil
}

// Close asks the server to shut down. A server that is already gone is not
// an error.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		if c.exited() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := c.do(ctx, "shutdown", http.MethodDelete, "/", nil, nil)
		var ee *core.EngineError
		if errors.As(err, &ee) {
			c.closeErr = err
			return
		}
		if err != nil {
			// the server may drop the connection while shutting down
			c.logger.Debug("Shutdown request did not complete", "error", err)
		}
	})
	return c.closeErr
}

func (c *Channel) exited() bool {
	if c.opts.Done == nil {
		return false
	}
	select {
	case <-c.opts.Done:
		return true
	default:
		return false
	}
}

// do sends one request and returns the reply body. Failures come back as
// *core.TransportError; a non-2xx reply wraps the server's *core.EngineError.
func (c *Channel) do(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	if c.exited() {
		return nil, core.NewTransportError(op, ErrProcessExited)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if c.opts.Done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-c.opts.Done:
				cancel()
			case <-stop:
			}
		}()
	}

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, core.NewTransportError(op, fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Request", "method", method, "path", path, "query", u.RawQuery, "body", string(body))
	start := c.clock.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logging.Request(c.logger, op, c.clock.Now().Sub(start), err)
		if c.exited() {
			err = ErrProcessExited
		}
		return nil, core.NewTransportError(op, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Request(c.logger, op, c.clock.Now().Sub(start), err)
		return nil, core.NewTransportError(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := engineError(resp.StatusCode, path, respBody)
		logging.Request(c.logger, op, c.clock.Now().Sub(start), err)
		return nil, core.NewTransportError(op, err)
	}
	logging.Request(c.logger, op, c.clock.Now().Sub(start), nil)
	c.logger.Debug("Response", "status", resp.StatusCode, "body", string(respBody))
	return respBody, nil
}

// engineError reads the server's error document, falling back to the raw
// body when the reply is not JSON.
func engineError(status int, path string, body []byte) *core.EngineError {
	ee := &core.EngineError{Status: status, Err: http.StatusText(status), Path: path}
	if !gjson.ValidBytes(body) {
		ee.Message = strings.TrimSpace(string(body))
		return ee
	}
	doc := gjson.ParseBytes(body)
	if v := doc.Get("error"); v.Exists() {
		ee.Err = v.String()
	}
	if v := doc.Get("message"); v.Exists() {
		ee.Message = v.String()
	}
	if v := doc.Get("path"); v.Exists() {
		ee.Path = v.String()
	}
	return ee
}

type member struct {
	key   string
	space *core.Space
}

// document builds a JSON object from its members, keeping their order.
func document(members ...member) ([]byte, error) {
	doc := []byte("{}")
	for _, m := range members {
		raw := []byte("{}")
		if m.space != nil {
			var err error
			if raw, err = m.space.MarshalJSON(); err != nil {
				return nil, &core.ValidationError{Space: m.space.Name(), Message: err.Error()}
			}
		}
		var err error
		if doc, err = sjson.SetRawBytes(doc, m.key, raw); err != nil {
			return nil, fmt.Errorf("build %s body: %w", m.key, err)
		}
	}
	return doc, nil
}
