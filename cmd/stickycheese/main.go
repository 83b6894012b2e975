// stickycheese - multi-provider LLM chat from the terminal, with an optional
// pass-through relay.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/store"
)

var (
	version = "v0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(args)
	case "relay":
		err = runRelay(args)
	case "models":
		err = runModels(args)
	case "conversations", "conv":
		err = runConversations(args)
	case "setup":
		err = runSetup(args)
	case "doctor":
		err = runDoctor(args)
	case "logs":
		err = runLogs(args)
	case "version", "-v", "--version":
		fmt.Printf("stickycheese %s\n", version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration. Config loading messages
// go to the log, which commands redirect before calling it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore loads the configuration and the conversation store.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return cfg, st, nil
}

// quietLogs sends process logs to the log file, falling back to discarding
// them, so command output on stdout stays clean.
func quietLogs() {
	if err := logging.ConfigureForFile(); err != nil {
		logging.ConfigureQuiet()
		log.Printf("%s Failed to open log file: %v", logging.Prefix, err)
	}
}

// findConversation resolves a full conversation id or a unique prefix.
func findConversation(st *store.Store, ref string) (store.Conversation, error) {
	if c, err := st.Get(ref); err == nil {
		return c, nil
	}
	var found []store.Conversation
	for _, c := range st.Conversations() {
		if strings.HasPrefix(c.ID, ref) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return store.Conversation{}, fmt.Errorf("conversation %w: %s", store.ErrNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return store.Conversation{}, fmt.Errorf("conversation id %q is ambiguous (%d matches)", ref, len(found))
	}
}

func printHelp() {
	fmt.Printf(`stickycheese %s - chat with OpenAI, Anthropic and Google models

Usage: stickycheese <command> [options] [arguments]

Chatting:
  chat [options] [prompt]       Send a prompt and stream the reply
    -c <id>                     Continue a conversation (id or unique prefix)
    -m <model>                  Model to use (see 'stickycheese models')
    -s <prompt>                 System prompt
    -i <file>                   Attach an image (repeatable)
    -relay <url>                Route the request through a relay
    -max-tokens <n>             Output ceiling for streaming models (default: 4096)
    -strict                     Fail when a stream ends without its end marker
    -debug                      Log raw requests and stream frames
  The prompt is read from stdin when no argument is given. Ctrl-C stops the reply.

Conversations:
  conversations list                       List conversations, newest first
  conversations show <id>                  Print a conversation
  conversations export <id> [-format f]    Export as text (default) or json [-o file]
  conversations rename <id> <title>        Rename a conversation
  conversations model <id> <model>         Change a conversation's model
  conversations system <id> [prompt]       Set or clear the system prompt
  conversations clear <id>                 Remove all messages
  conversations delete <id>                Delete a conversation

Relay:
  relay [options]               Run the pass-through relay
    -port <n>                   Port to listen on (default: 8787)
    -origins <a,b>              Allowed CORS origins (default: all)
    -rate-limit                 Enable per-client rate limiting
    -debug                      Log forwarded headers (masked)

Models & Setup:
  models [-provider p] [-filter q] [-remote]   List models
  setup                         Enter API keys and pick a default model
  doctor [-online]              Check configuration, keys and relay
  logs [-path|-clear|-debug|-follow]           Show log files
  version                       Show version
  help                          Show this help

Environment:
  OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY (or GEMINI_API_KEY)
  STICKYCHEESE_RELAY_URL        Relay base URL for chats
  STICKYCHEESE_MODEL            Default model (default: gpt-4o)
  STICKYCHEESE_SYSTEM_PROMPT    Default system prompt for new conversations
  STICKYCHEESE_STORE            Store backend: json, sqlite or memory (default: json)
  STICKYCHEESE_DATA_DIR         Store location (default: ~/.stickycheese/data)
  STICKYCHEESE_PORT             Relay port
  STICKYCHEESE_ALLOWED_ORIGINS  Relay CORS allow-list, comma separated
  STICKYCHEESE_DEBUG            Enable debug logging

Configuration is read from ~/.stickycheese/config.yaml (or config.toml) and
.env files in the current directory and ~/.stickycheese.
`, version)
}
