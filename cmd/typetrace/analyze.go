package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"typetrace/internal/config"
	"typetrace/internal/model"
	"typetrace/internal/render"
	"typetrace/internal/report"
)

func cmdAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	logPath := fs.String("log", "", "path to the engine event log")
	inferFlag := fs.Bool("infer", false, "diagnose deopts and print advice")
	dotPath := fs.String("dot", "", "write the automata state graphs as DOT")
	sig := fs.String("sig", "", "draw only machines whose name contains this")
	objectsOnly := fs.Bool("objects-only", false, "draw only object and boilerplate machines")
	functionsOnly := fs.Bool("functions-only", false, "draw only function machines")
	cfgPath := fs.String("config", "", "YAML limits file overriding the defaults")
	jsonPath := fs.String("json", "", "write retained advice as JSON")
	debug := fs.Bool("debug", false, "echo each record to stderr while replaying")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logPath == "" {
		return fmt.Errorf("--log is required")
	}
	if *objectsOnly && *functionsOnly {
		return fmt.Errorf("--objects-only and --functions-only are mutually exclusive")
	}

	lim := config.Default()
	if *cfgPath != "" {
		var err error
		if lim, err = config.Load(*cfgPath); err != nil {
			return err
		}
	}

	out := report.New(os.Stdout)
	a := model.New(lim, out)
	a.Mon.Analyze = *inferFlag
	a.Debug = *debug
	a.DebugW = os.Stderr

	f, err := os.Open(*logPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.Run(f); err != nil {
		return err
	}

	if *dotPath != "" {
		filt := render.Filter{
			ObjectsOnly:   *objectsOnly,
			FunctionsOnly: *functionsOnly,
			Sig:           *sig,
			MinSize:       lim.DrawStates,
		}
		dot := render.AutomataDOT(a.Machines(), filt, filepath.Base(*logPath))
		if err := os.WriteFile(*dotPath, []byte(dot), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *dotPath)
	}
	if *jsonPath != "" {
		if err := out.WriteJSON(*jsonPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *jsonPath)
	}
	return nil
}
