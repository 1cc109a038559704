package scrunch

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crunch-io/scrunch/crcomponents"
	"github.com/Crunch-io/scrunch/testhelpers/shojiservices"
)

// clearCredentialEnv blanks the credential environment so tests only see what
// they set themselves. HOME points at an empty directory so no real
// crunch.ini is picked up.
func clearCredentialEnv(t *testing.T) {
	t.Setenv("CRUNCH_API_KEY", "")
	t.Setenv("CRUNCH_USERNAME", "")
	t.Setenv("CRUNCH_PASSWORD", "")
	t.Setenv("CRUNCH_URL", "")
	t.Setenv("HOME", t.TempDir())
}

func testConfig(handler http.Handler) Config {
	return Config{
		APIKey:           "test-key",
		HTTP:             shojiservices.HTTPConfigurationForHandler(handler),
		Logging:          crcomponents.NoLogging(),
		ServiceEndpoints: crcomponents.PrivateInstanceEndpoints(shojiservices.APIBase),
	}
}

func connectTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	clearCredentialEnv(t)
	client, err := Connect(context.Background(), testConfig(handler))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func drainRequests(requestsCh <-chan httphelpers.HTTPRequestInfo) []httphelpers.HTTPRequestInfo {
	var requests []httphelpers.HTTPRequestInfo
	for {
		select {
		case r := <-requestsCh:
			requests = append(requests, r)
		default:
			return requests
		}
	}
}

func TestConnectWithAPIKey(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	handler, requestsCh := httphelpers.RecordingHandler(site)
	client := connectTestClient(t, handler)

	assert.False(t, client.FeatureFlag("old_projects_order"))
	for _, r := range drainRequests(requestsCh) {
		assert.Equal(t, "Bearer test-key", r.Request.Header.Get("Authorization"))
	}
}

func TestConnectWithUsernameAndPasswordLogsIn(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	handler, requestsCh := httphelpers.RecordingHandler(site)
	clearCredentialEnv(t)

	config := testConfig(handler)
	config.APIKey = ""
	config.Username = "me@example.com"
	config.Password = "hunter2"
	client, err := Connect(context.Background(), config)
	require.NoError(t, err)
	defer client.Close()

	requests := drainRequests(requestsCh)
	require.NotEmpty(t, requests)
	login := requests[0]
	assert.Equal(t, http.MethodPost, login.Request.Method)
	assert.Equal(t, "/api/public/login/", login.Request.URL.Path)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(login.Body, &body))
	assert.Equal(t, "me@example.com", body["email"])
	assert.Equal(t, "hunter2", body["password"])
}

func TestConnectRejectsBadPassword(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.SetMutation(shojiservices.APIBase+"public/login/", 401, "", nil)
	clearCredentialEnv(t)

	config := testConfig(site)
	config.APIKey = ""
	config.Username = "me@example.com"
	config.Password = "wrong"
	_, err := Connect(context.Background(), config)
	var authErr AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "rejected")
}

func TestConnectLogsCustomEndpoint(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	clearCredentialEnv(t)

	mockLog := ldlogtest.NewMockLog()
	config := testConfig(site)
	config.Logging = crcomponents.Logging().Loggers(mockLog.Loggers)
	client, err := Connect(context.Background(), config)
	require.NoError(t, err)
	defer client.Close()

	mockLog.AssertMessageMatch(t, true, ldlog.Info, "custom API endpoint")
}

func TestConnectFailsWithoutCredentials(t *testing.T) {
	clearCredentialEnv(t)
	_, err := Connect(context.Background(), Config{})
	var authErr AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestConnectResolvesCredentialsFromEnvironment(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	handler, requestsCh := httphelpers.RecordingHandler(site)
	clearCredentialEnv(t)
	t.Setenv("CRUNCH_API_KEY", "env-key")
	t.Setenv("CRUNCH_URL", shojiservices.APIBase)

	client, err := Connect(context.Background(), Config{
		HTTP:    shojiservices.HTTPConfigurationForHandler(handler),
		Logging: crcomponents.NoLogging(),
	})
	require.NoError(t, err)
	defer client.Close()

	requests := drainRequests(requestsCh)
	require.NotEmpty(t, requests)
	assert.Equal(t, "Bearer env-key", requests[0].Request.Header.Get("Authorization"))
}

func TestConnectResolvesCredentialsFromINIFile(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	handler, requestsCh := httphelpers.RecordingHandler(site)
	clearCredentialEnv(t)

	home := t.TempDir()
	t.Setenv("HOME", home)
	ini := "[DEFAULT]\n" +
		"CRUNCH_API_KEY = file-key\n" +
		"CRUNCH_URL = " + shojiservices.APIBase + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "crunch.ini"), []byte(ini), 0600))

	client, err := Connect(context.Background(), Config{
		HTTP:    shojiservices.HTTPConfigurationForHandler(handler),
		Logging: crcomponents.NoLogging(),
	})
	require.NoError(t, err)
	defer client.Close()

	requests := drainRequests(requestsCh)
	require.NotEmpty(t, requests)
	assert.Equal(t, "Bearer file-key", requests[0].Request.Header.Get("Authorization"))
}

func TestGetDatasetByID(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.AddDataset("abc", "My Data", nil)
	client := connectTestClient(t, site)

	ds, err := client.GetDataset(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", ds.ID())
	assert.Equal(t, "My Data", ds.Name())
	assert.Equal(t, shojiservices.DatasetURL("abc"), ds.URL())
}

func TestGetDatasetByURL(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.AddDataset("abc", "My Data", nil)
	client := connectTestClient(t, site)

	ds, err := client.GetDataset(context.Background(), shojiservices.DatasetURL("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", ds.ID())
}

func TestGetDatasetRejectsNonDatasetURL(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.AddDataset("abc", "My Data", nil)
	client := connectTestClient(t, site)

	_, err := client.GetDataset(context.Background(), shojiservices.VariableURL("abc", "v1"))
	var refErr InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
}

func TestGetDatasetByNameFallsBackToLookup(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.AddDataset("abc", "My Data", nil)
	site.Set(shojiservices.DatasetsByNameURL, shojiservices.CatalogDocument(
		shojiservices.DatasetsByNameURL,
		map[string]interface{}{
			shojiservices.DatasetURL("abc"): map[string]interface{}{"name": "My Data"},
		}))
	handler, requestsCh := httphelpers.RecordingHandler(site)
	client := connectTestClient(t, handler)

	ds, err := client.GetDataset(context.Background(), "My Data")
	require.NoError(t, err)
	assert.Equal(t, "abc", ds.ID())
	drainRequests(requestsCh)

	// The second lookup hits the cached URL instead of the by_name view.
	_, err = client.GetDataset(context.Background(), "My Data")
	require.NoError(t, err)
	for _, r := range drainRequests(requestsCh) {
		assert.NotEqual(t, "/api/datasets/by_name/", r.Request.URL.Path)
	}
}

func TestGetDatasetUnknownReference(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.Set(shojiservices.DatasetsByNameURL, shojiservices.CatalogDocument(
		shojiservices.DatasetsByNameURL, map[string]interface{}{}))
	client := connectTestClient(t, site)

	_, err := client.GetDataset(context.Background(), "nope")
	var refErr InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "nope", refErr.Reference)
}

func TestCreateDataset(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.AddDataset("new1", "Fresh", nil)
	site.SetMutation(shojiservices.DatasetsCatalogURL, 201, shojiservices.DatasetURL("new1"), nil)
	handler, requestsCh := httphelpers.RecordingHandler(site)
	client := connectTestClient(t, handler)
	drainRequests(requestsCh)

	ds, err := client.CreateDataset(context.Background(), "Fresh", map[string]interface{}{
		"age": map[string]interface{}{"type": "numeric", "name": "Age"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", ds.ID())

	var post *httphelpers.HTTPRequestInfo
	for _, r := range drainRequests(requestsCh) {
		if r.Request.Method == http.MethodPost {
			r := r
			post = &r
			break
		}
	}
	require.NotNil(t, post)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(post.Body, &body))
	assert.Equal(t, "shoji:entity", body["element"])
	inner := body["body"].(map[string]interface{})
	assert.Equal(t, "Fresh", inner["name"])
	table := inner["table"].(map[string]interface{})
	assert.Equal(t, "crunch:table", table["element"])
	require.Contains(t, table["metadata"].(map[string]interface{}), "age")
}

func TestUserFetchesAuthenticatedUser(t *testing.T) {
	site := shojiservices.NewConnectedSite()
	site.Set(shojiservices.UserURL, shojiservices.EntityDocument(shojiservices.UserURL,
		map[string]interface{}{"email": "me@example.com"}))
	client := connectTestClient(t, site)

	user, err := client.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", user.BodyValue("email").StringValue())
}
