package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "overview":
		err = cmdOverview(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `typetrace — engine event log analyzer

Usage:
  typetrace analyze  --log <file>              Replay the log and print advice
      [--infer]                                Diagnose deopts against the automata
      [--dot <file>]                           Write the state graphs as DOT
      [--sig <substr>]                         Draw only machines matching substr
      [--objects-only | --functions-only]      Restrict the drawn machine kinds
      [--config <yaml>]                        Override the built-in limits
      [--json <file>]                          Dump retained advice as JSON
      [--debug]                                Echo each record to stderr
  typetrace overview --log <file> --out <file>  Machine/context overview as DOT
`)
}
