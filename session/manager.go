// Package session owns the browser: it launches Chromium, keeps the one
// authenticated page the workflow drives, and tears everything down.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/dojo-export/config"
	"github.com/use-agent/dojo-export/models"
	"github.com/use-agent/dojo-export/workflow"
	"github.com/ysmood/gson"
)

// stagingDir holds in-progress downloads under the output directory.
const stagingDir = ".downloads"

// Login form.
var (
	usernameInput = workflow.Locator{CSS: "#id_username"}
	passwordInput = workflow.Locator{CSS: "#id_password"}
	loginButton   = workflow.Locator{CSS: "button", Text: "Login"}
)

// Credentials is the DefectDojo login pair.
type Credentials struct {
	Username string
	Password string
}

// Manager manages the browser lifecycle for one batch run.
// It is not safe for concurrent use.
type Manager struct {
	browserCfg  config.BrowserConfig
	baseURL     string
	outputDir   string
	stepTimeout time.Duration

	launcher      *launcher.Launcher
	browser       *rod.Browser
	router        *rod.HijackRouter
	page          *Page
	downloadDir   string
	authenticated bool
}

// NewManager prepares a Manager. Nothing is launched until Open.
func NewManager(browserCfg config.BrowserConfig, baseURL, outputDir string, stepTimeout time.Duration) *Manager {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Manager{
		browserCfg:  browserCfg,
		baseURL:     strings.TrimRight(baseURL, "/"),
		outputDir:   outputDir,
		stepTimeout: stepTimeout,
	}
}

// Open creates the output directory, launches the browser with certificate
// errors ignored and opens the page downloads are accepted on.
func (m *Manager) Open() error {
	outDir, err := filepath.Abs(m.outputDir)
	if err != nil {
		return models.NewAutomationError(models.ErrCodeConfigInvalid, "resolve output directory", err)
	}
	downloadDir := filepath.Join(outDir, stagingDir)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return models.NewAutomationError(models.ErrCodeConfigInvalid, "create output directory", err)
	}
	m.downloadDir = downloadDir

	l := launcher.New().
		Headless(m.browserCfg.Headless).
		NoSandbox(m.browserCfg.NoSandbox)

	if m.browserCfg.BrowserBin != "" {
		l = l.Bin(m.browserCfg.BrowserBin)
	}

	// DefectDojo instances commonly run on self-signed certificates.
	l.Set(flags.Flag("ignore-certificate-errors"))
	l.Set(flags.Flag("ignore-ssl-errors"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return models.NewAutomationError(models.ErrCodeBrowserLaunch, "failed to launch browser", err)
	}
	m.launcher = l
	slog.Info("browser launched", "controlURL", controlURL, "headless", m.browserCfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return models.NewAutomationError(models.ErrCodeBrowserLaunch, "failed to connect to browser", err)
	}
	m.browser = browser

	if err := browser.IgnoreCertErrors(true); err != nil {
		return models.NewAutomationError(models.ErrCodeBrowserLaunch, "failed to ignore certificate errors", err)
	}

	var page *rod.Page
	if m.browserCfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return models.NewAutomationError(models.ErrCodeBrowserLaunch, "failed to create page", err)
	}

	if len(m.browserCfg.ExtraHeaders) > 0 {
		page.EnableDomain(&proto.NetworkEnable{})
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(m.browserCfg.ExtraHeaders),
		}).Call(page); err != nil {
			slog.Warn("failed to set extra headers", "error", err)
		}
	}

	m.router = setupHijack(page, m.browserCfg.BlockedResourceTypes)

	m.page = &Page{
		browser:     browser,
		page:        page,
		downloadDir: downloadDir,
		hijacked:    m.router != nil,
	}
	return nil
}

// Authenticate logs in unless the session already is. It never returns an
// error: failures are logged and reported as false.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) bool {
	if m.authenticated {
		return true
	}
	if m.page == nil {
		slog.Error("login failed", "error", "session is not open")
		return false
	}
	if err := m.login(ctx, creds); err != nil {
		slog.Error("login failed", "user", creds.Username, "error", err)
		return false
	}
	m.authenticated = true
	slog.Info("logged in", "user", creds.Username)
	return true
}

func (m *Manager) login(ctx context.Context, creds Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()

	if err := m.page.Navigate(ctx, m.baseURL+"/login"); err != nil {
		return err
	}
	if err := m.page.Fill(ctx, usernameInput, creds.Username); err != nil {
		return err
	}
	if err := m.page.Fill(ctx, passwordInput, creds.Password); err != nil {
		return err
	}
	if err := m.page.Click(ctx, loginButton); err != nil {
		return err
	}

	url, err := m.page.URL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(url, "/login") {
		return fmt.Errorf("still on login page after submit: %s", url)
	}
	return nil
}

// Page returns the active page, or nil before Open.
func (m *Manager) Page() workflow.Page {
	if m.page == nil {
		return nil
	}
	return m.page
}

// Close stops the browser and removes the download staging directory.
// It is safe to call when Open was never called or failed, and more than once.
func (m *Manager) Close() {
	if m.router != nil {
		_ = m.router.Stop()
		m.router = nil
	}
	if m.browser != nil {
		slog.Info("closing browser")
		if err := m.browser.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
	if m.downloadDir != "" {
		_ = os.RemoveAll(m.downloadDir)
		m.downloadDir = ""
	}
	m.page = nil
	m.authenticated = false
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	h := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		h[k] = gson.New(v)
	}
	return h
}
