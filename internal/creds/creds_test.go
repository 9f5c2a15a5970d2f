package creds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environments.yml")
	content := `environments:
  - name: dev
    account: "1234567890"
  - name: prod
    account: "0987654321"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	if len(catalog.Environments) != 2 {
		t.Fatalf("environments = %d, want 2", len(catalog.Environments))
	}

	account, err := catalog.Account("prod")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if account != "0987654321" {
		t.Errorf("Account(prod) = %q, want 0987654321", account)
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("LoadCatalog() expected error for missing file")
	}
}

func TestCatalog_UnknownEnvironment(t *testing.T) {
	catalog := &Catalog{Environments: []Environment{{Name: "dev", Account: "1"}}}

	_, err := catalog.Account("staging")
	if err == nil {
		t.Fatal("Account() expected error for unknown environment")
	}
	if !strings.Contains(err.Error(), "environments.yml") {
		t.Errorf("error = %q, want pointer to environments.yml", err)
	}
}

// testAPI serves both the identity and account credential endpoints and
// counts requests so memoization can be asserted.
type testAPI struct {
	identityCalls int
	credsCalls    int
}

func (a *testAPI) start(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/tokens", func(w http.ResponseWriter, r *http.Request) {
		a.identityCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"access": map[string]any{
				"token": map[string]any{
					"id":     "test-token",
					"tenant": map[string]any{"id": "test-tenant"},
				},
			},
		})
	})
	mux.HandleFunc("/awsAccounts/", func(w http.ResponseWriter, r *http.Request) {
		a.credsCalls++
		if r.Header.Get("X-Auth-Token") != "test-token" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		account := strings.Split(strings.TrimPrefix(r.URL.Path, "/awsAccounts/"), "/")[0]
		json.NewEncoder(w).Encode(map[string]any{
			"credential": map[string]string{
				"accessKeyId":     "AKIA-" + account,
				"secretAccessKey": "secret",
				"sessionToken":    "session",
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testCache(t *testing.T, api *testAPI) *Cache {
	t.Helper()
	srv := api.start(t)
	catalog := &Catalog{Environments: []Environment{
		{Name: "dev", Account: "1234567890"},
		{Name: "prod", Account: "0987654321"},
	}}
	return NewCache("user", "apikey", catalog,
		WithIdentityURL(srv.URL+"/tokens"),
		WithAccountURLBase(srv.URL+"/awsAccounts"),
	)
}

func TestCache_FetchesCredentials(t *testing.T) {
	api := &testAPI{}
	cache := testCache(t, api)

	got, err := cache.Get(context.Background(), "prod")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.AccessKeyID != "AKIA-0987654321" {
		t.Errorf("AccessKeyID = %q, want AKIA-0987654321", got.AccessKeyID)
	}
	if got.SessionToken != "session" {
		t.Errorf("SessionToken = %q, want session", got.SessionToken)
	}
}

func TestCache_MemoizesPerEnvironment(t *testing.T) {
	api := &testAPI{}
	cache := testCache(t, api)

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(context.Background(), "dev"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if _, err := cache.Get(context.Background(), "prod"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if api.credsCalls != 2 {
		t.Errorf("credential calls = %d, want 2 (one per environment)", api.credsCalls)
	}
	if api.identityCalls != 1 {
		t.Errorf("identity calls = %d, want 1 (token exchanged once)", api.identityCalls)
	}
}

func TestCache_UnknownEnvironment(t *testing.T) {
	api := &testAPI{}
	cache := testCache(t, api)

	if _, err := cache.Get(context.Background(), "staging"); err == nil {
		t.Fatal("Get() expected error for unknown environment")
	}
	if api.identityCalls != 0 {
		t.Errorf("identity calls = %d, want 0 for unknown environment", api.identityCalls)
	}
}
