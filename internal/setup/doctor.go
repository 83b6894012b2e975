package setup

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/secrets"
	"github.com/jedarden/stickycheese/internal/store"
)

// Diagnostic statuses.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// DiagnosticResult represents the result of a single diagnostic check.
type DiagnosticResult struct {
	Name    string
	Status  string
	Message string
	Fix     string // suggested fix if status is not ok
}

// Doctor checks that stickycheese is ready to chat.
type Doctor struct {
	cfg      *config.Config
	settings store.Settings
	dir      string
	client   *http.Client
	online   bool
	results  []DiagnosticResult
}

// NewDoctor creates a doctor for cfg and the saved settings. With online set
// it also checks that the provider hosts are reachable.
func NewDoctor(cfg *config.Config, settings store.Settings, online bool) *Doctor {
	return &Doctor{
		cfg:      cfg,
		settings: settings,
		dir:      config.Dir(),
		client:   &http.Client{Timeout: 5 * time.Second},
		online:   online,
	}
}

// Run executes all diagnostic checks and returns results.
func (d *Doctor) Run() []DiagnosticResult {
	d.results = nil

	d.checkConfigDirectory()
	d.checkConfigFile()
	d.checkAPIKeys()
	d.checkModel()
	d.checkRelay()
	d.checkPortAvailability(d.cfg.Port)
	if d.online {
		d.checkProviderConnectivity()
	}

	return d.results
}

func (d *Doctor) checkConfigDirectory() {
	if _, err := os.Stat(d.dir); os.IsNotExist(err) {
		d.addResult("Config Directory", StatusWarning, fmt.Sprintf("Directory %s does not exist", d.dir),
			"Run 'stickycheese setup' to create it")
		return
	}
	d.addResult("Config Directory", StatusOK, fmt.Sprintf("Directory %s exists", d.dir), "")
}

func (d *Doctor) checkConfigFile() {
	path := config.FindConfigFile(d.dir)
	if path == "" {
		d.addResult("Configuration", StatusOK, "No config file (using defaults and environment)", "")
		return
	}

	fileCfg := config.DefaultConfig()
	if err := config.LoadFile(fileCfg, path); err != nil {
		d.addResult("Configuration", StatusError, err.Error(), "Fix the syntax of "+path)
		return
	}
	if err := fileCfg.Validate(); err != nil {
		d.addResult("Configuration", StatusError, err.Error(), "Fix the value in "+path)
		return
	}
	d.addResult("Configuration", StatusOK, "Loaded "+path, "")
}

func (d *Doctor) checkAPIKeys() {
	var configured []string
	for _, id := range provider.IDs() {
		p, _ := provider.ByName(string(id))
		envVar := config.KeyEnvVar(id)
		fromEnv := os.Getenv(envVar) != ""
		saved := d.settings.Keys.Get(id)
		key := d.cfg.APIKey(id)
		if key == "" {
			key = saved
		}
		if key == "" {
			continue
		}
		configured = append(configured, fmt.Sprintf("%s %s %s", p.Label(), secrets.KeySource(envVar, fromEnv, saved != ""), secrets.MaskKey(key)))
	}

	if len(configured) == 0 {
		d.addResult("API Keys", StatusError, "No API keys configured",
			"Set OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY, or run 'stickycheese setup'")
		return
	}
	d.addResult("API Keys", StatusOK, strings.Join(configured, ", "), "")
}

func (d *Doctor) checkModel() {
	p, err := provider.Resolve(d.cfg.DefaultModel)
	if err != nil {
		d.addResult("Default Model", StatusError, err.Error(), "Run 'stickycheese models' to list valid ids")
		return
	}
	key := d.cfg.APIKey(p.Name())
	if key == "" {
		key = d.settings.Keys.Get(p.Name())
	}
	if key == "" {
		d.addResult("Default Model", StatusWarning,
			fmt.Sprintf("%s needs a %s key, none is configured", d.cfg.DefaultModel, p.Label()),
			"Add the key or pick another model with 'stickycheese setup'")
		return
	}
	d.addResult("Default Model", StatusOK, d.cfg.DefaultModel, "")
}

func (d *Doctor) checkRelay() {
	relay := d.cfg.RelayURL
	if relay == "" {
		relay = d.settings.RelayURL
	}
	if relay == "" {
		d.addResult("Relay", StatusOK, "Not used (direct provider calls)", "")
		return
	}

	resp, err := d.client.Get(relay + "/health")
	if err != nil {
		d.addResult("Relay", StatusError, fmt.Sprintf("Cannot reach %s: %v", relay, err),
			"Start it with 'stickycheese relay' or clear STICKYCHEESE_RELAY_URL")
		return
	}
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &health) != nil || health.Status != "ok" {
		d.addResult("Relay", StatusWarning, fmt.Sprintf("%s answered %d without a health report", relay, resp.StatusCode),
			"Check that the URL points at a stickycheese relay")
		return
	}
	d.addResult("Relay", StatusOK, fmt.Sprintf("%s (%s)", relay, health.Service), "")
}

func (d *Doctor) checkPortAvailability(port int) {
	name := fmt.Sprintf("Relay Port %d", port)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		d.addResult(name, StatusWarning, fmt.Sprintf("Port %d is in use", port),
			fmt.Sprintf("Run the relay on another port: stickycheese relay -port %d", port+1))
		return
	}
	listener.Close()
	d.addResult(name, StatusOK, "Available", "")
}

func (d *Doctor) checkProviderConnectivity() {
	for _, id := range provider.IDs() {
		p, _ := provider.ByName(string(id))
		name := fmt.Sprintf("Network (%s)", p.Label())

		req, _ := http.NewRequest(http.MethodHead, p.DefaultHost(), http.NoBody)
		resp, err := d.client.Do(req)
		if err != nil {
			d.addResult(name, StatusWarning, fmt.Sprintf("Cannot reach %s: %v", p.DefaultHost(), err),
				"Check your internet connection and firewall settings")
			continue
		}
		resp.Body.Close()
		d.addResult(name, StatusOK, "Reachable", "")
	}
}

func (d *Doctor) addResult(name, status, message, fix string) {
	d.results = append(d.results, DiagnosticResult{
		Name:    name,
		Status:  status,
		Message: message,
		Fix:     fix,
	})
}

// PrintResults formats and prints diagnostic results.
func (d *Doctor) PrintResults(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "stickycheese diagnostics")
	fmt.Fprintln(w, "")

	var okCount, warningCount, errorCount int
	for _, r := range d.results {
		var icon string
		switch r.Status {
		case StatusOK:
			icon = "✓"
			okCount++
		case StatusWarning:
			icon = "⚠"
			warningCount++
		case StatusError:
			icon = "✗"
			errorCount++
		}

		fmt.Fprintf(w, "%s %s: %s\n", icon, r.Name, r.Message)
		if r.Fix != "" && r.Status != StatusOK {
			fmt.Fprintf(w, "  └─ Fix: %s\n", r.Fix)
		}
	}

	fmt.Fprintln(w, "")
	switch {
	case errorCount > 0:
		fmt.Fprintf(w, "Summary: %d error(s), %d warning(s), %d ok\n", errorCount, warningCount, okCount)
	case warningCount > 0:
		fmt.Fprintf(w, "Summary: %d warning(s), %d ok\n", warningCount, okCount)
	default:
		fmt.Fprintf(w, "Summary: all %d checks passed\n", okCount)
	}
}

// HasErrors returns true if any errors were found.
func (d *Doctor) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}
