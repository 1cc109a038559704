package shoji

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/Crunch-io/scrunch/interfaces"
	"github.com/Crunch-io/scrunch/internal/endpoints"
)

const (
	// DefaultProgressInterval is how often progress resources are polled while
	// waiting for a long-running operation.
	DefaultProgressInterval = time.Second

	// DefaultProgressTimeout is how long a progress wait may run before giving up.
	DefaultProgressTimeout = 5 * time.Minute
)

// Session makes authenticated requests against a Crunch API instance and
// decodes the shoji documents it returns. GET responses are cached in memory
// according to the server's cache headers.
type Session struct {
	baseURI          string
	headers          http.Header
	httpClient       *http.Client
	loggers          ldlog.Loggers
	logBodies        bool
	progressInterval time.Duration
	progressTimeout  time.Duration
}

// Result describes the outcome of a POST request.
type Result struct {
	// Status is the HTTP status code.
	Status int
	// Location is the Location response header, set on entity creation.
	Location string
	// Value is the parsed response body, or a null value if the body was empty.
	Value ldvalue.Value
}

// NewSession creates a Session from resolved configuration. The base URI must
// be the API root with a trailing slash.
func NewSession(
	baseURI string,
	httpConfig interfaces.HTTPConfiguration,
	loggingConfig interfaces.LoggingConfiguration,
) *Session {
	httpClient := http.DefaultClient
	if httpConfig.CreateHTTPClient != nil {
		httpClient = httpConfig.CreateHTTPClient()
	}

	modifiedClient := *httpClient
	modifiedClient.Transport = &httpcache.Transport{
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
		Transport:           httpClient.Transport,
	}

	return &Session{
		baseURI:          baseURI,
		headers:          httpConfig.DefaultHeaders,
		httpClient:       &modifiedClient,
		loggers:          loggingConfig.Loggers,
		logBodies:        loggingConfig.LogRequestBodies,
		progressInterval: DefaultProgressInterval,
		progressTimeout:  DefaultProgressTimeout,
	}
}

// BaseURI returns the API root URI the session was created with.
func (s *Session) BaseURI() string {
	return s.baseURI
}

// Loggers returns the session's log destination, for use by components built
// on top of the session.
func (s *Session) Loggers() ldlog.Loggers {
	return s.loggers
}

// SetProgressPolicy overrides the polling interval and timeout used by
// WaitProgress. Zero values keep the current setting.
func (s *Session) SetProgressPolicy(interval, timeout time.Duration) {
	if interval > 0 {
		s.progressInterval = interval
	}
	if timeout > 0 {
		s.progressTimeout = timeout
	}
}

// Close releases idle connections held by the session's HTTP client.
func (s *Session) Close() {
	s.httpClient.CloseIdleConnections()
}

// GetEntity fetches and decodes a shoji:entity document. Subresource references
// in the document are resolved to absolute URLs.
func (s *Session) GetEntity(ctx context.Context, uri string) (*Entity, error) {
	body, _, err := s.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, malformedDocumentError(uri, err)
	}
	if entity.Self == "" {
		entity.Self = uri
	}
	resolveRefMap(entity.Self, entity.Catalogs)
	resolveRefMap(entity.Self, entity.Fragments)
	resolveRefMap(entity.Self, entity.Views)
	return &entity, nil
}

// GetCatalog fetches and decodes a shoji:catalog document. The index is
// re-keyed by absolute entity URL and each tuple's EntityURL is filled in.
func (s *Session) GetCatalog(ctx context.Context, uri string) (*Catalog, error) {
	body, _, err := s.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	var catalog Catalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, malformedDocumentError(uri, err)
	}
	if catalog.Self == "" {
		catalog.Self = uri
	}
	resolveRefMap(catalog.Self, catalog.Orders)
	index := make(map[string]Tuple, len(catalog.Index))
	for ref, tup := range catalog.Index {
		abs := endpoints.ResolveRelative(catalog.Self, ref)
		tup.EntityURL = abs
		index[abs] = tup
	}
	catalog.Index = index
	return &catalog, nil
}

// GetOrder fetches and decodes a shoji:order document. Relative references in
// the graph are resolved to absolute URLs.
func (s *Session) GetOrder(ctx context.Context, uri string) (*Order, error) {
	body, _, err := s.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	ord, err := ParseOrder(body)
	if err != nil {
		return nil, malformedDocumentError(uri, err)
	}
	if ord.Self == "" {
		ord.Self = uri
	}
	resolveGraphRefs(ord.Self, ord.Graph)
	return ord, nil
}

// GetView fetches and decodes a shoji:view document, optionally with query
// parameters.
func (s *Session) GetView(ctx context.Context, uri string, params url.Values) (*View, error) {
	if len(params) > 0 {
		sep := "?"
		if u, err := url.Parse(uri); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		uri = uri + sep + params.Encode()
	}
	body, _, err := s.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	var view View
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, malformedDocumentError(uri, err)
	}
	return &view, nil
}

// Post sends a JSON body and returns the response status, Location header, and
// parsed body.
func (s *Session) Post(ctx context.Context, uri string, body interface{}) (*Result, error) {
	resp, err := s.do(ctx, http.MethodPost, uri, body)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)
	if err := checkForHTTPError(resp.StatusCode, uri); err != nil {
		return nil, err
	}
	data, _ := io.ReadAll(resp.Body)
	result := &Result{
		Status:   resp.StatusCode,
		Location: resp.Header.Get("Location"),
		Value:    ldvalue.Parse(data),
	}
	if result.Location != "" {
		result.Location = endpoints.ResolveRelative(uri, result.Location)
	}
	return result, nil
}

// PostAndWait sends a JSON body and, if the server answers with a 202 progress
// reference, waits for the operation to finish.
func (s *Session) PostAndWait(ctx context.Context, uri string, body interface{}) (*Result, error) {
	result, err := s.Post(ctx, uri, body)
	if err != nil {
		return nil, err
	}
	if result.Status == http.StatusAccepted {
		if progressURL := result.Value.GetByKey("value").StringValue(); progressURL != "" {
			if err := s.WaitProgress(ctx, endpoints.ResolveRelative(uri, progressURL)); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// Patch sends a JSON body with the PATCH method.
func (s *Session) Patch(ctx context.Context, uri string, body interface{}) error {
	return s.send(ctx, http.MethodPatch, uri, body)
}

// Put sends a JSON body with the PUT method.
func (s *Session) Put(ctx context.Context, uri string, body interface{}) error {
	return s.send(ctx, http.MethodPut, uri, body)
}

// Delete removes a remote resource.
func (s *Session) Delete(ctx context.Context, uri string) error {
	return s.send(ctx, http.MethodDelete, uri, nil)
}

// Download streams the raw content of a URL to a writer, bypassing document
// decoding.
func (s *Session) Download(ctx context.Context, uri string, w io.Writer) error {
	resp, err := s.do(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if err := checkForHTTPError(resp.StatusCode, uri); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// WaitProgress polls a progress resource until the remote operation completes,
// fails, or the configured timeout elapses.
func (s *Session) WaitProgress(ctx context.Context, progressURL string) error {
	timeout := time.NewTimer(s.progressTimeout)
	defer timeout.Stop()
	ticker := newTickerWithInitialTick(s.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ProgressError{
				URL:     progressURL,
				Message: fmt.Sprintf("timed out after %v waiting for the operation to complete", s.progressTimeout),
			}
		case <-ticker.C:
			view, err := s.GetView(ctx, progressURL, nil)
			if err != nil {
				return err
			}
			progress := view.Value.GetByKey("progress").Float64Value()
			switch {
			case progress < 0:
				message := view.Value.GetByKey("message").StringValue()
				if message == "" {
					message = "the operation failed on the server"
				}
				return ProgressError{URL: progressURL, Message: message}
			case progress >= 100:
				return nil
			}
			if s.loggers.IsDebugEnabled() {
				s.loggers.Debugf("Operation at %s is %v%% complete", progressURL, progress)
			}
		}
	}
}

func (s *Session) send(ctx context.Context, method, uri string, body interface{}) error {
	resp, err := s.do(ctx, method, uri, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	return checkForHTTPError(resp.StatusCode, uri)
}

func (s *Session) get(ctx context.Context, uri string) ([]byte, bool, error) {
	resp, err := s.do(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, false, err
	}
	defer drainAndClose(resp)

	if err := checkForHTTPError(resp.StatusCode, uri); err != nil {
		return nil, false, err
	}

	cached := resp.Header.Get(httpcache.XFromCache) != ""

	body, ioErr := io.ReadAll(resp.Body)
	if ioErr != nil {
		return nil, false, ioErr
	}
	return body, cached, nil
}

func (s *Session) do(ctx context.Context, method, uri string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		if s.logBodies && s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("%s %s: %s", method, uri, data)
		} else if s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("%s %s", method, uri)
		}
		reader = bytes.NewReader(data)
	} else if s.loggers.IsDebugEnabled() {
		s.loggers.Debugf("%s %s", method, uri)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, err
	}
	for k, vv := range s.headers {
		req.Header[k] = vv
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.httpClient.Do(req)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func malformedDocumentError(uri string, err error) error {
	return fmt.Errorf("malformed document from %s: %w", uri, err)
}

func resolveRefMap(base string, refs map[string]string) {
	for k, v := range refs {
		refs[k] = endpoints.ResolveRelative(base, v)
	}
}

func resolveGraphRefs(base string, elements []GraphElement) {
	for i, el := range elements {
		if el.Group != nil {
			resolveGraphRefs(base, el.Group.Elements)
		} else if el.URL != "" {
			elements[i].URL = endpoints.ResolveRelative(base, el.URL)
		}
	}
}

type tickerWithInitialTick struct {
	*time.Ticker
	C <-chan time.Time
}

func newTickerWithInitialTick(interval time.Duration) *tickerWithInitialTick {
	c := make(chan time.Time, 1)
	ticker := time.NewTicker(interval)
	t := &tickerWithInitialTick{
		C:      c,
		Ticker: ticker,
	}
	c <- time.Now() // poll once immediately
	go func() {
		for tt := range ticker.C {
			select {
			case c <- tt:
			default:
			}
		}
	}()
	return t
}
