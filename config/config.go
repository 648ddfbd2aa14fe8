package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultFilenameTemplate names export files after the module and engagement.
const DefaultFilenameTemplate = "{moduleName}_findings_{version}.xlsx"

// ErrNoProducts is returned by Validate when the product list is empty.
var ErrNoProducts = errors.New("no products configured")

// Config holds all application configuration.
type Config struct {
	DefectDojo DefectDojoConfig
	Browser    BrowserConfig
	Export     ExportConfig
	Batch      BatchConfig
	Webhook    WebhookConfig
	Log        LogConfig

	// Products is the ordered list of hierarchical product names to export.
	Products []string
}

// DefectDojoConfig identifies the target instance.
type DefectDojoConfig struct {
	// BaseURL is the instance root without a trailing slash.
	BaseURL  string
	Username string
	Password string
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth patches the page to hide automation markers.
	Stealth bool // default: false

	// ExtraHeaders are sent with every request the page makes.
	ExtraHeaders map[string]string

	// BlockedResourceTypes lists resource types to block, e.g. "Image".
	BlockedResourceTypes []string
}

// ExportConfig controls the per-product workflow.
type ExportConfig struct {
	// OutputDir receives spreadsheets and the run summary.
	OutputDir string // default: "./reports"

	// FilenameTemplate may contain {moduleName} and {version}.
	FilenameTemplate string

	// StepTimeout bounds every page operation.
	StepTimeout time.Duration // default: 30s

	// TableTimeout bounds the wait for the engagements table.
	TableTimeout time.Duration // default: 10s

	// OptionTimeout bounds the exact engagement option lookup.
	OptionTimeout time.Duration // default: 5s

	// DownloadTimeout bounds the wait for the export download.
	DownloadTimeout time.Duration // default: 15s
}

// BatchConfig controls the batch runner.
type BatchConfig struct {
	// ProductDelay is the pause between consecutive products.
	ProductDelay time.Duration // default: 2s
}

// WebhookConfig controls the run summary notification.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// LoadEnvFile merges a dotenv file into the process environment.
// Variables already set are left untouched. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		DefectDojo: DefectDojoConfig{
			BaseURL:  strings.TrimRight(os.Getenv("DEFECTDOJO_URL"), "/"),
			Username: os.Getenv("DEFECTDOJO_USERNAME"),
			Password: os.Getenv("DEFECTDOJO_PASSWORD"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("HEADLESS_MODE", false),
			NoSandbox:            envBoolOr("NO_SANDBOX", false),
			BrowserBin:           os.Getenv("BROWSER_BIN"),
			Stealth:              envBoolOr("STEALTH", false),
			ExtraHeaders:         ParseHeaders(os.Getenv("EXTRA_HEADERS")),
			BlockedResourceTypes: envSliceOr("BLOCKED_RESOURCES", nil),
		},
		Export: ExportConfig{
			OutputDir:        envOr("OUTPUT_DIR", "./reports"),
			FilenameTemplate: envOr("FILENAME_TEMPLATE", DefaultFilenameTemplate),
			StepTimeout:      envDurationOr("STEP_TIMEOUT", 30*time.Second),
			TableTimeout:     envDurationOr("TABLE_TIMEOUT", 10*time.Second),
			OptionTimeout:    envDurationOr("OPTION_TIMEOUT", 5*time.Second),
			DownloadTimeout:  envDurationOr("DOWNLOAD_TIMEOUT", 15*time.Second),
		},
		Batch: BatchConfig{
			ProductDelay: envDurationOr("PRODUCT_DELAY", 2*time.Second),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("WEBHOOK_URL"),
			Secret: os.Getenv("WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
		Products: ParseProducts(os.Getenv("PRODUCTS")),
	}
}

// Validate reports configuration that makes a run impossible.
// An empty product list yields ErrNoProducts so callers can tell it apart.
func (c *Config) Validate() error {
	if len(c.Products) == 0 {
		return ErrNoProducts
	}
	var missing []string
	if c.DefectDojo.BaseURL == "" {
		missing = append(missing, "DEFECTDOJO_URL")
	}
	if c.DefectDojo.Username == "" {
		missing = append(missing, "DEFECTDOJO_USERNAME")
	}
	if c.DefectDojo.Password == "" {
		missing = append(missing, "DEFECTDOJO_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Export.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	return nil
}

// ParseProducts splits a comma or newline separated list. Blank entries and
// entries starting with '#' are dropped; order is preserved.
func ParseProducts(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\n", ",")
	var products []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		products = append(products, p)
	}
	return products
}

// ParseHeaders parses "Name: value; Other: value" into a map.
// Malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
