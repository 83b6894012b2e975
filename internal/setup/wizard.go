package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/secrets"
	"github.com/jedarden/stickycheese/internal/store"
)

// Wizard walks through provider keys, key storage, the relay URL and the
// default model. Keys and the relay go to the store settings; the default
// model goes to the config file.
type Wizard struct {
	in         *bufio.Reader
	out        io.Writer
	cfg        *config.Config
	store      *store.Store
	configPath string

	// ReadKey prompts for one provider key. An empty result keeps the
	// current key.
	ReadKey func(id provider.ID, prompt string) (string, error)
	// PickModel chooses the default model.
	PickModel func(models []ModelInfo, current string) (string, error)
}

// NewWizard creates a wizard on stdin/stdout. On a terminal keys are read
// with masked input and the model through the fuzzy picker.
func NewWizard(cfg *config.Config, st *store.Store, configPath string) *Wizard {
	w := &Wizard{
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		cfg:        cfg,
		store:      st,
		configPath: configPath,
	}
	if IsTTY() {
		w.ReadKey = RunSecureInput
		w.PickModel = RunModelPicker
	} else {
		w.ReadKey = w.readKeyLine
		w.PickModel = w.pickModelLine
	}
	return w
}

// SetIO replaces the wizard's input and output.
func (w *Wizard) SetIO(in io.Reader, out io.Writer) {
	w.in = bufio.NewReader(in)
	w.out = out
}

// Run executes the wizard.
func (w *Wizard) Run() error {
	w.println("")
	w.println("stickycheese setup")
	w.println("==================")
	w.println("")

	if err := w.keys(); err != nil {
		return err
	}
	if err := w.storageMode(); err != nil {
		return err
	}
	if err := w.relay(); err != nil {
		return err
	}
	if err := w.model(); err != nil {
		return err
	}

	w.println("")
	w.println("Setup complete. Start chatting with: stickycheese chat \"Hello\"")
	return nil
}

func (w *Wizard) keys() error {
	settings := w.store.Settings()
	for _, id := range provider.IDs() {
		p, _ := provider.ByName(string(id))
		envVar := config.KeyEnvVar(id)
		fromEnv := os.Getenv(envVar) != ""
		saved := settings.Keys.Get(id)

		w.printf("%s: %s %s\n", p.Label(), secrets.KeySource(envVar, fromEnv, saved != ""), secrets.MaskKey(saved))
		if fromEnv {
			continue
		}

		key, err := w.ReadKey(id, fmt.Sprintf("%s API key (Enter keeps the current one)", p.Label()))
		if err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !ValidKeyFormat(id, key) {
			w.printf("  Warning: that does not look like a %s key; saving it anyway.\n", p.Label())
		}
		if err := w.store.SetAPIKey(id, key); err != nil {
			return err
		}
		w.cfg.SetAPIKey(id, key)
	}
	return nil
}

func (w *Wizard) storageMode() error {
	w.println("")
	w.println("Keys can stay in memory for this session only, or be saved to disk.")
	current := w.store.Settings().StorageMode
	answer, err := w.prompt("Save keys to disk? [y/N]", "")
	if err != nil {
		return err
	}

	mode := store.StorageSession
	switch strings.ToLower(answer) {
	case "y", "yes":
		mode = store.StorageLocal
	case "":
		mode = current
	}
	if mode == current {
		return nil
	}
	return w.store.SetStorageMode(mode)
}

func (w *Wizard) relay() error {
	w.println("")
	current := w.store.Settings().RelayURL
	answer, err := w.prompt("Relay URL (blank for direct provider calls, '-' to clear)", current)
	if err != nil {
		return err
	}
	if answer == "-" {
		answer = ""
	}
	if answer == current {
		return nil
	}
	if answer != "" && !strings.HasPrefix(answer, "http://") && !strings.HasPrefix(answer, "https://") {
		return fmt.Errorf("relay URL must start with http:// or https://")
	}
	return w.store.SetRelayURL(answer)
}

func (w *Wizard) model() error {
	hasKey := func(id provider.ID) bool {
		return w.cfg.APIKey(id) != "" || w.store.Settings().Keys.Get(id) != ""
	}
	chosen, err := w.PickModel(ModelInfos(provider.Models(), hasKey), w.cfg.DefaultModel)
	if errors.Is(err, ErrCanceled) {
		w.printf("Keeping %s as the default model.\n", w.cfg.DefaultModel)
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := provider.Lookup(chosen); err != nil {
		return err
	}

	// Only the model is written; other file settings are kept as they are.
	fileCfg := config.DefaultConfig()
	if _, err := os.Stat(w.configPath); err == nil {
		if err := config.LoadFile(fileCfg, w.configPath); err != nil {
			return err
		}
	}
	fileCfg.DefaultModel = chosen
	if err := os.MkdirAll(filepath.Dir(w.configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.SaveFile(fileCfg, w.configPath); err != nil {
		return err
	}
	w.cfg.DefaultModel = chosen
	w.printf("Default model: %s (saved to %s)\n", chosen, w.configPath)
	return nil
}

// readKeyLine reads a key as a plain line when stdin is not a terminal.
func (w *Wizard) readKeyLine(id provider.ID, prompt string) (string, error) {
	return w.prompt(prompt, "")
}

// pickModelLine lists the models and reads an id or number.
func (w *Wizard) pickModelLine(models []ModelInfo, current string) (string, error) {
	w.println("")
	for i, m := range models {
		w.printf("  %2d) %-28s %s\n", i+1, m.ID, m.Description())
	}
	answer, err := w.prompt("Default model (number, id or filter)", current)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", ErrCanceled
	}
	if _, err := provider.Lookup(answer); err == nil {
		return answer, nil
	}
	var n int
	if _, err := fmt.Sscanf(answer, "%d", &n); err == nil && n >= 1 && n <= len(models) {
		return models[n-1].ID, nil
	}
	descs := make([]provider.ModelDescriptor, len(models))
	for i, m := range models {
		descs[i] = m.ModelDescriptor
	}
	if matches := FilterModels(answer, descs); len(matches) > 0 {
		return matches[0].ID, nil
	}
	return "", fmt.Errorf("%w: %s", provider.ErrUnknownModel, answer)
}

func (w *Wizard) prompt(label, defaultVal string) (string, error) {
	if defaultVal != "" {
		w.printf("%s [%s]: ", label, defaultVal)
	} else {
		w.printf("%s: ", label)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal, nil
	}
	return line, nil
}

func (w *Wizard) println(s string) {
	fmt.Fprintln(w.out, s)
}

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}
