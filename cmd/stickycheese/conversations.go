package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jedarden/stickycheese/internal/store"
)

const conversationsUsage = `Usage: stickycheese conversations <list|show|export|rename|model|system|clear|delete> [id] [args]`

func runConversations(args []string) error {
	if len(args) == 0 {
		return errors.New(conversationsUsage)
	}
	quietLogs()

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sub, rest := args[0], args[1:]
	if sub == "list" || sub == "ls" {
		return listConversations(st)
	}

	if sub == "export" {
		return exportConversation(st, rest)
	}

	if len(rest) == 0 {
		return errors.New(conversationsUsage)
	}
	conv, err := findConversation(st, rest[0])
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(rest[1:], " "))

	switch sub {
	case "show":
		out, err := st.Export(conv.ID, store.ExportText)
		if err != nil {
			return err
		}
		fmt.Print(out)
	case "rename":
		if text == "" {
			return errors.New("usage: stickycheese conversations rename <id> <title>")
		}
		if err := st.Rename(conv.ID, text); err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q\n", short(conv.ID), text)
	case "model":
		if text == "" {
			return errors.New("usage: stickycheese conversations model <id> <model>")
		}
		if err := st.SetModel(conv.ID, text); err != nil {
			return err
		}
		fmt.Printf("%s now uses %s\n", short(conv.ID), text)
	case "system":
		if err := st.SetSystemPrompt(conv.ID, text); err != nil {
			return err
		}
		if text == "" {
			fmt.Printf("Cleared the system prompt of %s\n", short(conv.ID))
		} else {
			fmt.Printf("Set the system prompt of %s\n", short(conv.ID))
		}
	case "clear":
		if err := st.Clear(conv.ID); err != nil {
			return err
		}
		fmt.Printf("Cleared %d message(s) from %s\n", len(conv.Messages), short(conv.ID))
	case "delete", "rm":
		if err := st.Delete(conv.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%s)\n", short(conv.ID), conv.Title)
	default:
		return fmt.Errorf("unknown conversations command: %s\n%s", sub, conversationsUsage)
	}
	return nil
}

func listConversations(st *store.Store) error {
	convs := st.Conversations()
	if len(convs) == 0 {
		fmt.Println("No conversations yet. Start one with: stickycheese chat \"Hello\"")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMODEL\tMESSAGES\tUPDATED")
	for _, c := range convs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			short(c.ID), c.Title, c.ModelID, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func exportConversation(st *store.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", string(store.ExportText), "Export format: text or json")
	output := fs.String("o", "", "Write to a file instead of stdout")
	fs.Parse(reorderFlags(args))

	if fs.NArg() != 1 {
		return errors.New("usage: stickycheese conversations export <id> [-format text|json] [-o file]")
	}
	conv, err := findConversation(st, fs.Arg(0))
	if err != nil {
		return err
	}

	out, err := st.Export(conv.ID, store.ExportFormat(*format))
	if err != nil {
		return err
	}
	if *output == "" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(*output, []byte(out), 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("Exported %s to %s\n", short(conv.ID), *output)
	return nil
}

// reorderFlags moves flags ahead of positional arguments so "export <id>
// -format json" parses like "export -format json <id>".
func reorderFlags(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if !strings.Contains(a, "=") && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
