package scrunch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Crunch-io/scrunch/crcomponents"
	"github.com/Crunch-io/scrunch/interfaces"
	"github.com/Crunch-io/scrunch/internal/endpoints"
	"github.com/Crunch-io/scrunch/shoji"
)

const iniFileName = "crunch.ini"

type credentials struct {
	apiKey   string
	username string
	password string
	baseURI  string
}

// Connect authenticates against the Crunch API and returns a Client.
//
// Credentials are resolved in this order: the Config fields, the
// CRUNCH_API_KEY (or CRUNCH_USERNAME and CRUNCH_PASSWORD) and CRUNCH_URL
// environment variables, and finally a crunch.ini file in the current
// directory or the user's home directory. An API key always takes precedence
// over a username and password found at the same level. If no credentials can
// be resolved, Connect returns an AuthenticationError.
func Connect(ctx context.Context, config Config) (*Client, error) {
	creds, err := resolveCredentials(config)
	if err != nil {
		return nil, err
	}

	basic := interfaces.BasicConfiguration{
		APIKey:           creds.apiKey,
		ServiceEndpoints: crcomponents.PrivateInstanceEndpoints(creds.baseURI),
	}

	loggingFactory := config.Logging
	if loggingFactory == nil {
		loggingFactory = crcomponents.Logging()
	}
	logging, err := loggingFactory.CreateLoggingConfiguration(basic)
	if err != nil {
		return nil, err
	}

	httpFactory := config.HTTP
	if httpFactory == nil {
		httpFactory = crcomponents.HTTPConfiguration()
	}
	http, err := httpFactory.CreateHTTPConfiguration(basic)
	if err != nil {
		return nil, err
	}

	session := shoji.NewSession(endpoints.SelectBaseURI(basic.ServiceEndpoints), http, logging)
	if endpoints.IsCustom(basic.ServiceEndpoints) {
		logging.Loggers.Infof("Using custom API endpoint %s", session.BaseURI())
	}
	if config.ProgressInterval > 0 || config.ProgressTimeout > 0 {
		interval, timeout := config.ProgressInterval, config.ProgressTimeout
		if interval <= 0 {
			interval = shoji.DefaultProgressInterval
		}
		if timeout <= 0 {
			timeout = shoji.DefaultProgressTimeout
		}
		session.SetProgressPolicy(interval, timeout)
	}

	if creds.apiKey == "" {
		if err := login(ctx, session, creds.username, creds.password); err != nil {
			return nil, err
		}
	}

	return newClient(ctx, session)
}

// ConnectDefault authenticates using only the environment and crunch.ini.
func ConnectDefault(ctx context.Context) (*Client, error) {
	return Connect(ctx, Config{})
}

func resolveCredentials(config Config) (credentials, error) {
	creds := credentials{
		apiKey:   config.APIKey,
		username: config.Username,
		password: config.Password,
		baseURI:  config.ServiceEndpoints.API,
	}

	if creds.baseURI == "" {
		creds.baseURI = os.Getenv("CRUNCH_URL")
	}
	if creds.apiKey == "" && creds.username == "" {
		creds.apiKey = os.Getenv("CRUNCH_API_KEY")
		if creds.apiKey == "" {
			creds.username = os.Getenv("CRUNCH_USERNAME")
			creds.password = os.Getenv("CRUNCH_PASSWORD")
		}
	}

	if creds.apiKey == "" && creds.username == "" || creds.baseURI == "" {
		fileCreds, ok := readINIFile()
		if ok {
			if creds.baseURI == "" {
				creds.baseURI = fileCreds.baseURI
			}
			if creds.apiKey == "" && creds.username == "" {
				creds.apiKey = fileCreds.apiKey
				if creds.apiKey == "" {
					creds.username = fileCreds.username
					creds.password = fileCreds.password
				}
			}
		}
	}

	if creds.baseURI == "" {
		creds.baseURI = endpoints.DefaultAPIBaseURI
	}
	if creds.apiKey == "" && (creds.username == "" || creds.password == "") {
		return credentials{}, AuthenticationError{
			Message: "no API key or username/password in configuration, environment, or " + iniFileName,
		}
	}
	return creds, nil
}

// readINIFile loads crunch.ini from the working directory, falling back to
// the home directory. Keys live in the DEFAULT section.
func readINIFile() (credentials, bool) {
	path := iniFileName
	if _, err := os.Stat(path); err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return credentials{}, false
		}
		path = filepath.Join(home, iniFileName)
		if _, err := os.Stat(path); err != nil {
			return credentials{}, false
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return credentials{}, false
	}
	return credentials{
		apiKey:   v.GetString("default.crunch_api_key"),
		username: v.GetString("default.crunch_username"),
		password: v.GetString("default.crunch_password"),
		baseURI:  v.GetString("default.crunch_url"),
	}, true
}

// login posts to the public login endpoint. The session cookie set by the
// response lives in the HTTP client's cookie jar and authenticates all
// subsequent requests.
func login(ctx context.Context, session *shoji.Session, username, password string) error {
	loginURL := endpoints.AddPath(session.BaseURI(), endpoints.LoginPath)
	_, err := session.Post(ctx, loginURL, map[string]interface{}{
		"email":    username,
		"password": password,
	})
	if err != nil {
		if shoji.IsAuthFailure(err) {
			return AuthenticationError{Message: "the server rejected the username and password"}
		}
		return err
	}
	return nil
}
