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

func cmdOverview(args []string) error {
	fs := flag.NewFlagSet("overview", flag.ExitOnError)
	logPath := fs.String("log", "", "path to the engine event log")
	outPath := fs.String("out", "", "output DOT file")
	sig := fs.String("sig", "", "draw only machines whose name contains this")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logPath == "" {
		return fmt.Errorf("--log is required")
	}
	if *outPath == "" {
		return fmt.Errorf("--out is required")
	}

	lim := config.Default()
	a := model.New(lim, report.New(nil))
	a.Mon.Analyze = true

	f, err := os.Open(*logPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.Run(f); err != nil {
		return err
	}

	filt := render.Filter{Sig: *sig, MinSize: lim.DrawStates}
	g := render.BuildOverview(a.Machines(), filt)
	dot := render.OverviewDOT(g, filepath.Base(*logPath))
	if err := os.WriteFile(*outPath, []byte(dot), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d machines, %d edges)\n", *outPath, len(g.Nodes), len(g.Edges))
	return nil
}
