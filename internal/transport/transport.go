// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport performs stateless HTTP exchanges with a SQL-over-HTTP gateway.
//
// Every batch is one POST to the gateway endpoint derived from the
// connection string. The connection string itself is forwarded opaquely
// in a header; the gateway authenticates each request with it (or with
// a bearer token) and holds no session between requests.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/build/version"
	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/mux"
	"github.com/pgfetch/pgfetch/internal/util/fuzz"
	"github.com/pgfetch/pgfetch/internal/util/iface"
	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/observability"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// Request headers understood by the gateway.
const (
	headerConnString = "Neon-Connection-String"
	headerRawText    = "Neon-Raw-Text-Output"
	headerArrayMode  = "Neon-Array-Mode"
	headerIsolation  = "Neon-Batch-Isolation-Level"
	headerReadOnly   = "Neon-Batch-Read-Only"
	headerDeferrable = "Neon-Batch-Deferrable"
)

// NewOpts represents Transport constructor options.
type NewOpts struct {
	// ConnString is the postgresql:// connection string; it selects the
	// endpoint and is forwarded to the gateway with every request.
	ConnString string

	// AuthToken, if set, is sent as a bearer token and switches the
	// endpoint to the token-authenticating gateway host.
	AuthToken string

	// Endpoint overrides the URL derived from ConnString.
	Endpoint string

	// UserAgent overrides the default pgfetch/<version> value.
	UserAgent string

	// HTTPClient overrides the client used for exchanges.
	HTTPClient *http.Client

	// RecordDir, if set, is the directory incoming response bodies are
	// recorded to in the Go fuzz corpus encoding.
	RecordDir string

	L *zap.Logger
}

// Transport submits statement batches to one gateway endpoint.
type Transport struct {
	token *resource.Token

	http      *http.Client
	endpoint  string
	conn      string
	authToken string
	userAgent string
	recordDir string
	l         *zap.Logger

	requests *prometheus.CounterVec
}

// New creates a transport for the given connection string.
func New(opts *NewOpts) (*Transport, error) {
	must.NotBeZero(opts.L)

	u, err := parseConnString(opts.ConnString)
	if err != nil {
		return nil, err
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = endpointFromHost(u.Hostname(), opts.AuthToken != "")
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "pgfetch/" + version.Get().Version
	}

	client := opts.HTTPClient
	if client == nil {
		client = new(http.Client)
	}

	t := &Transport{
		token:     resource.NewToken(),
		http:      client,
		endpoint:  endpoint,
		conn:      opts.ConnString,
		authToken: opts.AuthToken,
		userAgent: userAgent,
		recordDir: opts.RecordDir,
		l:         opts.L,
		requests:  newRequestsVec(),
	}

	resource.Track(t, t.token)

	return t, nil
}

// parseConnString validates the connection string.
func parseConnString(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, dberrors.New(dberrors.CodeConfiguration, fmt.Errorf("invalid connection string: %w", err))
	}

	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return nil, dberrors.Newf(dberrors.CodeConfiguration, "invalid scheme %q: expected postgresql or postgres", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, dberrors.Newf(dberrors.CodeConfiguration, "connection string must include a hostname")
	}

	if u.User.Username() == "" {
		return nil, dberrors.Newf(dberrors.CodeConfiguration, "connection string must include a username")
	}

	if u.Path == "" || u.Path == "/" {
		return nil, dberrors.Newf(dberrors.CodeConfiguration, "connection string must include a database name")
	}

	return u, nil
}

// endpointFromHost derives the gateway URL by replacing the first DNS label
// of the database host. A host without a domain part is used as-is.
func endpointFromHost(host string, tokenAuth bool) string {
	prefix := "api."
	if tokenAuth {
		prefix = "apiauth."
	}

	if i := strings.Index(host, "."); i >= 0 {
		host = prefix + host[i+1:]
	}

	return "https://" + host + "/sql"
}

// Endpoint returns the gateway URL exchanges are POSTed to.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// SubmitBatch performs one exchange.
//
// Statement failures the gateway reports are returned inside the response
// (see wireproto.BatchResponse.FailedIndex), not as an error; the error
// return covers configuration, authentication, network, and protocol
// failures of the exchange itself.
func (t *Transport) SubmitBatch(ctx context.Context, req *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
	defer observability.FuncCall(ctx)()

	body, err := req.EncodeBody()
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	t.setHeaders(hreq.Header, req.TxOptions)
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(hreq.Header))

	started := time.Now()

	fields := []any{
		zap.Int("statements", len(req.Statements)),
		zap.Stringer("body", iface.Stringer(func() string { return string(body) })),
	}
	t.l.Sugar().With(fields...).Debugf(">>> %s", t.endpoint)

	hres, err := t.http.Do(hreq)
	if err != nil {
		t.requests.WithLabelValues("error").Inc()
		t.l.Sugar().With(zap.Duration("time", time.Since(started)), zap.Error(err)).Debugf("<<< %s", t.endpoint)

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, dberrors.New(dberrors.CodeTimeout, err)
		case errors.Is(err, context.Canceled):
			return nil, dberrors.New(dberrors.CodeCancelled, err)
		default:
			return nil, dberrors.New(dberrors.CodeConnection, err)
		}
	}

	defer hres.Body.Close() //nolint:errcheck // we are only reading it

	b, err := io.ReadAll(hres.Body)
	if err != nil {
		t.requests.WithLabelValues("error").Inc()
		return nil, dberrors.New(dberrors.CodeConnection, err)
	}

	t.requests.WithLabelValues(strconv.Itoa(hres.StatusCode)).Inc()

	fields = append(fields, zap.Duration("time", time.Since(started)), zap.Int("status", hres.StatusCode))
	t.l.Sugar().With(fields...).Debugf("<<< %s", t.endpoint)

	if t.recordDir != "" {
		if err = fuzz.Record(t.recordDir, b); err != nil {
			t.l.Warn("Failed to record response body", zap.Error(err))
		}
	}

	return decodeResponse(hres.StatusCode, b, req.Single())
}

// setHeaders fills the gateway request headers.
func (t *Transport) setHeaders(h http.Header, tx *wireproto.TxOptions) {
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", t.userAgent)
	h.Set(headerConnString, t.conn)
	h.Set(headerRawText, "true")
	h.Set(headerArrayMode, "true")

	if t.authToken != "" {
		h.Set("Authorization", "Bearer "+t.authToken)
	}

	if tx != nil {
		h.Set(headerIsolation, tx.Isolation.String())
		h.Set(headerReadOnly, strconv.FormatBool(tx.ReadOnly))
		h.Set(headerDeferrable, strconv.FormatBool(tx.Deferrable))
	}
}

// decodeResponse maps the HTTP status and body to the outcome list.
func decodeResponse(status int, body []byte, single bool) (*wireproto.BatchResponse, error) {
	switch status {
	case http.StatusUnauthorized:
		return nil, dberrors.Newf(dberrors.CodeAuthentication, "authentication failed: check your connection string credentials")
	case http.StatusForbidden:
		return nil, dberrors.Newf(dberrors.CodeAuthentication, "authorization failed: check your auth token or permissions")
	}

	if status/100 == 2 {
		resp, err := wireproto.DecodeSuccess(body, single)
		if err != nil {
			return nil, dberrors.New(dberrors.CodeHTTP, fmt.Errorf("invalid response body: %w", err))
		}

		return resp, nil
	}

	// a statement rejection arrives as a decodable error report;
	// anything else is an opaque gateway failure
	resp, err := wireproto.DecodeError(body)
	if err != nil {
		return nil, dberrors.Newf(dberrors.CodeHTTP, "request failed with status %d: %s", status, body)
	}

	return resp, nil
}

// Close releases idle connections and the transport's resource token.
func (t *Transport) Close() {
	t.http.CloseIdleConnections()

	resource.Untrack(t, t.token)
}

// check interfaces
var (
	_ mux.Submitter = (*Transport)(nil)
)
