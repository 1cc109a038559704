// Package scrunch is a client library for the Crunch.io analytics platform.
//
// Connect with an API key or username/password to obtain a Client, then use
// the Dataset, Variable, and Order proxies to script dataset management.
// Every operation is a round trip: the proxies hold no dataset content, only
// the metadata needed to build requests.
//
//	client, err := scrunch.Connect(scrunch.Config{APIKey: key})
//	if err != nil { ... }
//	defer client.Close()
//	ds, err := client.GetDataset(ctx, "My Survey")
package scrunch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	gocache "github.com/patrickmn/go-cache"

	"github.com/Crunch-io/scrunch/internal/endpoints"
	"github.com/Crunch-io/scrunch/shoji"
)

// Feature flags that are resolved once at connect time. Flag state does not
// change during the lifetime of a session.
var watchedFeatureFlags = []string{"old_projects_order"} //nolint:gochecknoglobals

const (
	datasetURLCacheTTL    = 5 * time.Minute
	datasetURLCachePurge  = 10 * time.Minute
	datasetsByNameView    = "datasets_by_name"
	featureFlagView       = "feature_flag"
	authenticatedUserView = "user"
)

// Client is an authenticated connection to a Crunch instance.
//
// A Client is safe for concurrent use by multiple goroutines. Create one with
// Connect and reuse it; each Client maintains its own HTTP connection pool and
// response cache.
type Client struct {
	session      *shoji.Session
	loggers      ldlog.Loggers
	root         *shoji.Entity
	featureFlags map[string]bool
	datasetURLs  *gocache.Cache
}

func newClient(ctx context.Context, session *shoji.Session) (*Client, error) {
	root, err := session.GetEntity(ctx, session.BaseURI())
	if err != nil {
		if shoji.IsAuthFailure(err) {
			return nil, AuthenticationError{Message: "the server rejected the supplied credentials"}
		}
		return nil, err
	}

	c := &Client{
		session:      session,
		loggers:      session.Loggers(),
		root:         root,
		featureFlags: make(map[string]bool, len(watchedFeatureFlags)),
		datasetURLs:  gocache.New(datasetURLCacheTTL, datasetURLCachePurge),
	}
	for _, name := range watchedFeatureFlags {
		active, err := c.fetchFeatureFlag(ctx, name)
		if err != nil {
			return nil, err
		}
		c.featureFlags[name] = active
	}

	c.loggers.Infof("Connected to %s", session.BaseURI())
	return c, nil
}

func (c *Client) fetchFeatureFlag(ctx context.Context, name string) (bool, error) {
	viewURL, ok := c.root.Views[featureFlagView]
	if !ok {
		return false, nil
	}
	view, err := c.session.GetView(ctx, viewURL, url.Values{"feature_name": {name}})
	if err != nil {
		return false, err
	}
	return view.Value.GetByKey("active").BoolValue(), nil
}

// Session returns the underlying shoji session, for requests against
// endpoints the client does not wrap.
func (c *Client) Session() *shoji.Session {
	return c.session
}

// FeatureFlag reports whether a server-side feature flag was active when the
// client connected.
func (c *Client) FeatureFlag(name string) bool {
	return c.featureFlags[name]
}

// User fetches the entity describing the authenticated user.
func (c *Client) User(ctx context.Context) (*shoji.Entity, error) {
	userURL, ok := c.root.Views[authenticatedUserView]
	if !ok {
		return nil, fmt.Errorf("scrunch: API root has no %q view", authenticatedUserView)
	}
	return c.session.GetEntity(ctx, userURL)
}

func (c *Client) datasetsCatalogURL() string {
	if u, ok := c.root.Catalogs["datasets"]; ok {
		return u
	}
	return endpoints.AddPath(c.session.BaseURI(), endpoints.DatasetsPath)
}

// GetDataset fetches a dataset by URL, ID, or exact name.
//
// A reference containing "://" is treated as an entity URL. Otherwise the
// reference is first tried as a dataset ID; if no dataset has that ID, the
// reference is looked up as a name among the datasets visible to the user.
// Name lookups are cached briefly, so a dataset renamed on the server may
// still be found under its old name for a few minutes.
func (c *Client) GetDataset(ctx context.Context, ref string) (*Dataset, error) {
	entityURL, err := c.resolveDatasetURL(ctx, ref)
	if err != nil {
		return nil, err
	}
	entity, err := c.session.GetEntity(ctx, entityURL)
	if err != nil {
		if shoji.IsNotFound(err) {
			c.datasetURLs.Delete(ref)
			return nil, InvalidReferenceError{Reference: ref}
		}
		return nil, err
	}
	return newDataset(c, entity), nil
}

func (c *Client) resolveDatasetURL(ctx context.Context, ref string) (string, error) {
	if strings.Contains(ref, "://") {
		if !endpoints.IsDatasetURL(ref) {
			return "", InvalidReferenceError{Reference: ref}
		}
		return ref, nil
	}
	if cached, ok := c.datasetURLs.Get(ref); ok {
		return cached.(string), nil
	}

	byID := endpoints.AddPath(c.datasetsCatalogURL(), ref)
	if _, err := c.session.GetEntity(ctx, byID); err == nil {
		c.datasetURLs.SetDefault(ref, byID)
		return byID, nil
	} else if !shoji.IsNotFound(err) {
		return "", err
	}

	byName, err := c.lookupDatasetByName(ctx, ref)
	if err != nil {
		return "", err
	}
	c.datasetURLs.SetDefault(ref, byName)
	return byName, nil
}

func (c *Client) lookupDatasetByName(ctx context.Context, name string) (string, error) {
	viewURL, ok := c.root.Views[datasetsByNameView]
	if !ok {
		return "", fmt.Errorf("scrunch: API root has no %q view", datasetsByNameView)
	}
	catalog, err := c.session.GetCatalog(ctx, viewURL+"?"+url.Values{"name": {name}}.Encode())
	if err != nil {
		return "", err
	}
	for entityURL, tuple := range catalog.Index {
		if tuple.String("name") == name {
			return entityURL, nil
		}
	}
	return "", InvalidReferenceError{Reference: name}
}

// CreateDataset creates a dataset with the given name. The variables map, if
// non-nil, is crunch:table metadata defining the dataset's initial variables;
// metadatafile.Load produces one from a JSON or YAML file.
func (c *Client) CreateDataset(ctx context.Context, name string, variables map[string]interface{}) (*Dataset, error) {
	body := map[string]interface{}{"name": name}
	if variables != nil {
		body["table"] = map[string]interface{}{
			"element":  "crunch:table",
			"metadata": variables,
		}
	}
	result, err := c.session.PostAndWait(ctx, c.datasetsCatalogURL(), shoji.WrapEntity(body))
	if err != nil {
		return nil, err
	}
	if result.Location == "" {
		return nil, fmt.Errorf("scrunch: dataset creation response carried no Location")
	}
	entity, err := c.session.GetEntity(ctx, result.Location)
	if err != nil {
		return nil, err
	}
	c.loggers.Infof("Created dataset %q at %s", name, result.Location)
	return newDataset(c, entity), nil
}

// Close releases idle connections held by the client. The client may not be
// used after Close.
func (c *Client) Close() {
	c.session.Close()
	c.datasetURLs.Flush()
}
