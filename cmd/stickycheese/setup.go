package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/setup"
)

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	fs.Parse(args)

	quietLogs()

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	path := config.FindConfigFile(config.Dir())
	if path == "" {
		path = filepath.Join(config.Dir(), "config.yaml")
	}
	return setup.NewWizard(cfg, st, path).Run()
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	online := fs.Bool("online", false, "Also check that provider hosts are reachable")
	fs.Parse(args)

	quietLogs()

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	d := setup.NewDoctor(cfg, st.Settings(), *online)
	d.Run()
	d.PrintResults(os.Stdout)
	if d.HasErrors() {
		return errors.New("doctor found problems")
	}
	return nil
}
