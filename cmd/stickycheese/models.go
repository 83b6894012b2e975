package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/setup"
)

func runModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	providerName := fs.String("provider", "", "Only list models of this provider (openai, anthropic, google)")
	filter := fs.String("filter", "", "Fuzzy filter on id and name")
	remote := fs.Bool("remote", false, "Ask the Gemini API which Google models are available")
	fs.Parse(args)

	quietLogs()

	var descs []provider.ModelDescriptor
	switch {
	case *remote:
		if *providerName != "" && *providerName != string(provider.Google) {
			return errors.New("-remote lists Google models only")
		}
		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		key := cfg.APIKey(provider.Google)
		if key == "" {
			key = st.Settings().Keys.Get(provider.Google)
		}
		if key == "" {
			return errors.New("no Google API key configured (set GOOGLE_API_KEY or run 'stickycheese setup')")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fmt.Println("Fetching models from Google...")
		descs, err = provider.ListGoogleModels(ctx, key)
		if err != nil {
			return err
		}
	case *providerName != "":
		p, err := provider.ByName(*providerName)
		if err != nil {
			return err
		}
		descs = provider.ModelsFor(p.Name())
	default:
		descs = provider.Models()
	}

	descs = setup.FilterModels(*filter, descs)
	if len(descs) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tVISION")
	for _, m := range descs {
		vision := ""
		if m.SupportsVision {
			vision = "yes"
		}
		marker := ""
		if m.ID == provider.DefaultModel {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", m.ID, marker, m.Name, m.Provider, vision)
	}
	return w.Flush()
}
