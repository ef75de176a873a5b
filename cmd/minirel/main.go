// Command minirel is the line-oriented shell driving the engine package:
// a thin REPL reading commands from stdin, one per line, the Go analogue
// of the original run/main.c command loop. Grounded on the teacher's
// src/main.go (flag-parsed config path, fatal setup errors exit(2)) and
// sgbd.Run's scan-dispatch-continue loop. The -demo flag turns on §4.7's
// illustrative students/professors seeding on every "createdb", purely so
// the shell has something to query without a separate load step.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"minirel/config"
	"minirel/engine"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (defaults to the built-in geometry)")
	verbose := flag.Bool("v", false, "enable debug logging")
	demo := flag.Bool("demo", false, "seed students/professors demo relations on createdb")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}

	var opts []engine.Option
	if *demo {
		opts = append(opts, engine.WithDemoData())
	}
	e := engine.New(cfg, log, opts...)
	if err := run(e, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(2)
	}
}

func run(e *engine.Engine, in *os.File, out, errOut *os.File) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := e.Dispatch(line, out)
		if err == engine.ErrQuit {
			return e.Close()
		}
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, "OK")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return e.Close()
}
