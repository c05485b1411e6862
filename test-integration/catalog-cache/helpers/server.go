package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	internalapp "github.com/stacklok/catalog-cache/internal/app"
	"github.com/stacklok/catalog-cache/internal/config"
)

const (
	// HomeProfile is the profile configured with the panel's credentials
	HomeProfile = "home"
	// BrokenProfile is the profile configured with a wrong password
	BrokenProfile = "broken"
)

// ServerTestHelper manages a catalog cache server for integration tests
type ServerTestHelper struct {
	ctx        context.Context
	app        *internalapp.CatalogApp
	baseURL    string
	httpClient *http.Client
}

// NewServerTestHelper writes a configuration pointing both profiles at the
// panel and builds the application on a free local port.
func NewServerTestHelper(ctx context.Context, dir string, panel *MockPanel, username, password string) *ServerTestHelper {
	configPath := writeConfig(dir, panel.URL, username, password)

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	addr := freeAddress()
	app, err := internalapp.NewCatalogApp(ctx,
		internalapp.WithConfig(cfg),
		internalapp.WithAddress(addr),
	)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	return &ServerTestHelper{
		ctx:        ctx,
		app:        app,
		baseURL:    "http://" + addr,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func writeConfig(dir, panelURL, username, password string) string {
	writeFile := func(name, content string) string {
		path := filepath.Join(dir, name)
		gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
		return path
	}

	goodPassword := writeFile("home.password", password)
	badPassword := writeFile("broken.password", password+"-wrong")

	return writeFile("config.yaml", fmt.Sprintf(`database:
  path: %s
sync:
  pageTimeout: 5s
  maxRetries: 1
  initialBackoff: 10ms
  maxBackoff: 50ms
scheduler:
  enabled: false
details:
  ttl: 1h
profiles:
  - id: %s
    provider:
      url: %s
      username: %s
      passwordFile: %s
  - id: %s
    provider:
      url: %s
      username: %s
      passwordFile: %s
`,
		filepath.Join(dir, "catalog.db"),
		HomeProfile, panelURL, username, goodPassword,
		BrokenProfile, panelURL, username, badPassword,
	))
}

func freeAddress() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	addr := ln.Addr().String()
	gomega.Expect(ln.Close()).To(gomega.Succeed())
	return addr
}

// StartServer starts the server in the background
func (h *ServerTestHelper) StartServer() {
	go func() {
		defer func() {
			_ = recover()
		}()
		// Start blocks until the server stops
		_ = h.app.Start()
	}()
}

// StopServer stops the server
func (h *ServerTestHelper) StopServer() error {
	if h.app != nil {
		return h.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until the server reports it can answer queries
func (h *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() int {
		resp, err := h.httpClient.Get(h.baseURL + "/readiness")
		if err != nil {
			return 0
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}, timeout, 100*time.Millisecond).Should(gomega.Equal(http.StatusOK))
}

// Get performs a GET request against the API
func (h *ServerTestHelper) Get(path string) (int, []byte) {
	return h.do(http.MethodGet, path, nil)
}

// Post performs a POST request against the API
func (h *ServerTestHelper) Post(path string) (int, []byte) {
	return h.do(http.MethodPost, path, nil)
}

// Put performs a PUT request with a JSON body against the API
func (h *ServerTestHelper) Put(path string, body any) (int, []byte) {
	data, err := json.Marshal(body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return h.do(http.MethodPut, path, data)
}

func (h *ServerTestHelper) do(method, path string, body []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(h.ctx, method, h.baseURL+path, bytes.NewReader(body))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.httpClient.Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return resp.StatusCode, data
}

// Data decodes the "data" member of a success envelope into out
func Data(body []byte, out any) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	gomega.Expect(json.Unmarshal(body, &envelope)).To(gomega.Succeed())
	gomega.Expect(json.Unmarshal(envelope.Data, out)).To(gomega.Succeed())
}

// SyncStatus is the part of a sync progress snapshot the suite inspects
type SyncStatus struct {
	Status         string   `json:"status"`
	ItemsProcessed int      `json:"items_processed"`
	Errors         []string `json:"errors"`
}

// WaitForSyncStatus polls the sync progress of a profile until it reaches status
func (h *ServerTestHelper) WaitForSyncStatus(profile, status string, timeout time.Duration) SyncStatus {
	var last SyncStatus
	gomega.Eventually(func() string {
		code, body := h.Get("/api/v1/profiles/" + profile + "/sync")
		if code != http.StatusOK {
			return ""
		}
		Data(body, &last)
		return last.Status
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(status))
	return last
}

// RunSync starts a sync for the profile and waits for it to finish with status
func (h *ServerTestHelper) RunSync(profile string, full bool, status string) SyncStatus {
	code, body := h.Post(fmt.Sprintf("/api/v1/profiles/%s/sync?full=%t", profile, full))
	gomega.Expect(code).To(gomega.Equal(http.StatusAccepted), string(body))
	return h.WaitForSyncStatus(profile, status, 30*time.Second)
}
