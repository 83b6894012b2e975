package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedarden/stickycheese/internal/chat"
	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/setup"
	"github.com/jedarden/stickycheese/internal/store"
	"github.com/jedarden/stickycheese/internal/stream"
	"github.com/jedarden/stickycheese/internal/translator"
	"github.com/jedarden/stickycheese/pkg/models"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	convRef := fs.String("c", "", "Conversation to continue (id or unique prefix)")
	model := fs.String("m", "", "Model to use")
	system := fs.String("s", "", "System prompt")
	relayURL := fs.String("relay", "", "Relay base URL")
	maxTokens := fs.Int("max-tokens", 0, "Output ceiling for streaming models")
	strict := fs.Bool("strict", false, "Fail when a stream ends without its end marker")
	debug := fs.Bool("debug", false, "Log raw requests and stream frames")
	apiKey := fs.String("api-key", "", "API key for the model's provider (⚠️ visible in shell history)")
	var images stringList
	fs.Var(&images, "i", "Attach an image file (repeatable)")
	fs.Parse(args)

	quietLogs()
	defer logging.Close()

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if *relayURL != "" {
		cfg.RelayURL = translator.NormalizeRelayURL(*relayURL)
	}
	if cfg.Debug || *debug {
		if err := logging.EnableDebugLogging(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Debug log: %s\n", logging.GetDebugLogFilePath())
	}

	prompt, err := readPrompt(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	var attachments []models.ImageAttachment
	for _, path := range images {
		img, err := chat.LoadImage(path)
		if err != nil {
			return err
		}
		attachments = append(attachments, img)
	}
	if prompt == "" && len(attachments) == 0 {
		return errors.New("no prompt given; pass it as an argument or on stdin")
	}

	conv, err := prepareConversation(cfg, st, *convRef, *model, *system)
	if err != nil {
		return err
	}

	if *apiKey != "" {
		fmt.Fprint(os.Stderr, setup.WarnCLIAPIKey())
		p, err := provider.Resolve(conv.ModelID)
		if err != nil {
			return err
		}
		cfg.SetAPIKey(p.Name(), *apiKey)
	}

	var opts []stream.Option
	if *maxTokens > 0 {
		opts = append(opts, stream.WithMaxTokens(*maxTokens))
	}
	if *strict {
		opts = append(opts, stream.WithStrictTermination())
	}
	if logging.IsDebugEnabled() {
		opts = append(opts, stream.WithDebugFrames())
	}
	session := chat.NewSession(st, stream.NewClient(opts...), cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reply, err := session.Send(ctx, conv.ID, chat.Input{Text: prompt, Images: attachments}, func(text string) {
		fmt.Print(text)
	})
	fmt.Println()

	if *convRef == "" {
		fmt.Fprintf(os.Stderr, "Conversation %s (continue with: stickycheese chat -c %s)\n", conv.ID, conv.ID[:8])
	}
	if err != nil {
		var terr *stream.TransportError
		if errors.As(err, &terr) {
			return fmt.Errorf("%s (HTTP %d)", terr.Message, terr.StatusCode)
		}
		return err
	}
	if reply.Truncated {
		fmt.Fprintln(os.Stderr, "Note: the reply ended without an end-of-stream marker and may be incomplete.")
	}
	return nil
}

// readPrompt joins the arguments, or reads stdin when there are none and it
// is not a terminal.
func readPrompt(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if info, err := stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// prepareConversation continues ref or creates a conversation, applying the
// model and system prompt overrides.
func prepareConversation(cfg *config.Config, st *store.Store, ref, model, system string) (store.Conversation, error) {
	if ref == "" {
		if model == "" {
			model = cfg.DefaultModel
		}
		if system == "" {
			system = cfg.SystemPrompt
		}
	}
	if model != "" {
		if _, err := provider.Lookup(model); err != nil {
			return store.Conversation{}, err
		}
	}

	var conv store.Conversation
	var err error
	if ref != "" {
		conv, err = findConversation(st, ref)
	} else {
		conv, err = st.CreateConversation()
	}
	if err != nil {
		return store.Conversation{}, err
	}

	if model != "" && model != conv.ModelID {
		if err := st.SetModel(conv.ID, model); err != nil {
			return store.Conversation{}, err
		}
	}
	if system != "" && system != conv.SystemPrompt {
		if err := st.SetSystemPrompt(conv.ID, system); err != nil {
			return store.Conversation{}, err
		}
	}
	if err := st.SetActive(conv.ID); err != nil {
		return store.Conversation{}, err
	}
	return st.Get(conv.ID)
}
