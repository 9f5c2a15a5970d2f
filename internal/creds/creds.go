// Package creds exchanges identity-API credentials for temporary,
// environment-scoped AWS credentials and memoizes them for the process
// lifetime.
package creds

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/carlmjohnson/requests"
	"gopkg.in/yaml.v3"
)

const (
	defaultIdentityURL    = "https://identity.api.rackspacecloud.com/v2.0/tokens"
	defaultAccountURLBase = "https://accounts.api.manage.rackspace.com/v0/awsAccounts"
)

// AWSCredentials is one set of temporary account credentials.
type AWSCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
}

// Environment names one deployable account in the environment catalog.
type Environment struct {
	Name    string `yaml:"name"`
	Account string `yaml:"account"`
}

// Catalog is the parsed environments.yml file.
type Catalog struct {
	Environments []Environment `yaml:"environments"`
}

// LoadCatalog reads and parses an environments.yml file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading environments file %s: %w", path, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing environments file %s: %w", path, err)
	}
	return &cat, nil
}

// Account returns the account id for an environment name.
func (c *Catalog) Account(environment string) (string, error) {
	for _, env := range c.Environments {
		if env.Name == environment {
			return env.Account, nil
		}
	}
	return "", fmt.Errorf("environment %q is not known, add it to environments.yml file", environment)
}

// Option configures a Cache.
type Option func(*Cache)

// WithIdentityURL overrides the identity token endpoint.
func WithIdentityURL(url string) Option {
	return func(c *Cache) { c.identityURL = url }
}

// WithAccountURLBase overrides the account credential endpoint base.
func WithAccountURLBase(url string) Option {
	return func(c *Cache) { c.accountURLBase = url }
}

// Cache resolves per-environment AWS credentials lazily and memoizes
// them for the process lifetime. One identity token exchange backs all
// environments; the cache is never invalidated mid-run, so a run that
// spans a credential expiry window is not supported.
type Cache struct {
	username string
	apiKey   string
	catalog  *Catalog

	identityURL    string
	accountURLBase string

	mu     sync.Mutex
	token  string
	tenant string
	creds  map[string]AWSCredentials
}

// NewCache creates a credential cache for the given identity-API account
// and environment catalog.
func NewCache(username, apiKey string, catalog *Catalog, opts ...Option) *Cache {
	c := &Cache{
		username:       username,
		apiKey:         apiKey,
		catalog:        catalog,
		identityURL:    defaultIdentityURL,
		accountURLBase: defaultAccountURLBase,
		creds:          make(map[string]AWSCredentials),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns AWS credentials for an environment, fetching them on first
// use and serving the memoized copy afterwards. Safe for concurrent use;
// fetches are serialized so the token exchange happens at most once.
func (c *Cache) Get(ctx context.Context, environment string) (AWSCredentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.creds[environment]; ok {
		return cached, nil
	}

	account, err := c.catalog.Account(environment)
	if err != nil {
		return AWSCredentials{}, err
	}

	token, tenant, err := c.identityToken(ctx)
	if err != nil {
		return AWSCredentials{}, err
	}

	fetched, err := c.fetchCredentials(ctx, account, token, tenant)
	if err != nil {
		return AWSCredentials{}, err
	}

	c.creds[environment] = fetched
	return fetched, nil
}

// identityToken performs the identity token exchange once per process.
func (c *Cache) identityToken(ctx context.Context) (string, string, error) {
	if c.token != "" {
		return c.token, c.tenant, nil
	}

	payload := map[string]any{
		"auth": map[string]any{
			"RAX-KSKEY:apiKeyCredentials": map[string]string{
				"username": c.username,
				"apiKey":   c.apiKey,
			},
		},
	}

	var identity struct {
		Access struct {
			Token struct {
				ID     string `json:"id"`
				Tenant struct {
					ID string `json:"id"`
				} `json:"tenant"`
			} `json:"token"`
		} `json:"access"`
	}

	err := requests.URL(c.identityURL).
		BodyJSON(payload).
		ToJSON(&identity).
		Fetch(ctx)
	if err != nil {
		return "", "", fmt.Errorf("authenticating with identity API: %w", err)
	}

	c.token = identity.Access.Token.ID
	c.tenant = identity.Access.Token.Tenant.ID
	return c.token, c.tenant, nil
}

// fetchCredentials requests temporary AWS credentials for one account.
func (c *Cache) fetchCredentials(ctx context.Context, account, token, tenant string) (AWSCredentials, error) {
	payload := map[string]any{
		"credential": map[string]string{"duration": "3600"},
	}

	var response struct {
		Credential AWSCredentials `json:"credential"`
	}

	err := requests.URL(c.accountURLBase+"/"+account+"/credentials").
		Header("X-Auth-Token", token).
		Header("X-Tenant-Id", tenant).
		BodyJSON(payload).
		ToJSON(&response).
		Fetch(ctx)
	if err != nil {
		return AWSCredentials{}, fmt.Errorf("fetching AWS credentials for account %s: %w", account, err)
	}

	return response.Credential, nil
}
