// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/observability"
	"eclipso/internal/paths"
	"eclipso/internal/redactors"
	"eclipso/internal/version"
)

func main() {
	var (
		fileFlag    = flag.String("file", "", "File or directory to redact")
		outputFlag  = flag.String("output", "", "Output path for a single input file")
		outputDir   = flag.String("output-dir", "", "Directory for redacted copies")
		checksFlag  = flag.String("checks", "", "Comma-separated detection rule ids, or 'all'")
		configFile  = flag.String("config", "", "Path to config file")
		recursive   = flag.Bool("recursive", false, "Recurse into directories")
		verbose     = flag.Bool("verbose", false, "Enable progress output")
		debug       = flag.Bool("debug", false, "Enable JSON event logging")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		showVersion = flag.Bool("version", false, "Show version information")
		listTypes   = flag.Bool("list-types", false, "List supported document types")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	configPath := *configFile
	if configPath == "" {
		configPath = paths.FindConfigFile()
	}
	cfg := config.LoadConfigOrDefault(configPath)

	// Flags override the config file only when actually set
	checks := cfg.Defaults.Checks
	if isFlagSet("checks") {
		checks = *checksFlag
	}
	if isFlagSet("output-dir") {
		cfg.Output.Dir = *outputDir
	}
	if !isFlagSet("verbose") {
		*verbose = cfg.Defaults.Verbose
	}
	if !isFlagSet("debug") {
		*debug = cfg.Defaults.Debug
	}
	if *noColor || cfg.Defaults.NoColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	level := observability.ObservabilityOff
	if *verbose {
		level = observability.ObservabilityMetrics
	}
	if *debug {
		level = observability.ObservabilityDebug
	}
	observer := observability.NewStandardObserver(level, os.Stderr)

	det := detector.NewRegexDetector(detector.SelectRules(checks))
	det.SetMaskGlyph(cfg.MaskRune())
	manager := redactors.NewRedactionManager(observer, redactors.NewDefaultDrivers(det, cfg, observer)...)

	if *listTypes {
		for _, d := range manager.DescribeDrivers() {
			fmt.Println(d)
		}
		return
	}

	inputs, err := collectInputs(*fileFlag, flag.Args(), *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no input files, use -file or positional arguments")
		flag.Usage()
		os.Exit(1)
	}
	if *outputFlag != "" && len(inputs) > 1 {
		fmt.Fprintln(os.Stderr, "Error: -output only applies to a single input file")
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintfFunc()
	yellow := color.New(color.FgYellow).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()

	failures := 0
	for _, input := range inputs {
		outPath := resolveOutputPath(input, *outputFlag, cfg.Output.Dir)
		result, err := manager.RedactFile(input, outPath)
		switch {
		case err != nil:
			failures++
			fmt.Fprintln(os.Stderr, red("error: %s: %v", input, err))
		case !result.Success:
			fmt.Println(yellow("skipped: %s (unrecognized format, copied unchanged)", input))
		default:
			fmt.Println(green("redacted: %s -> %s (%d matches)", input, outPath, result.MatchCount))
		}
	}

	stats := manager.Stats()
	if *verbose {
		fmt.Printf("%d files, %d redactions, %d skipped\n", stats.Documents, stats.Redactions, stats.Skipped)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

// collectInputs resolves the -file flag and positional arguments into a
// flat file list. Directories require -recursive.
func collectInputs(fileFlag string, args []string, recursive bool) ([]string, error) {
	roots := args
	if fileFlag != "" {
		roots = append([]string{fileFlag}, args...)
	}

	var inputs []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			inputs = append(inputs, root)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory, use -recursive", root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				inputs = append(inputs, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return inputs, nil
}

// resolveOutputPath picks where the redacted copy goes: the explicit
// -output path, the output directory, or alongside the input with a
// ".redacted" suffix before the extension.
func resolveOutputPath(input, output, dir string) string {
	if output != "" {
		return output
	}
	if dir != "" {
		return filepath.Join(dir, filepath.Base(input))
	}
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".redacted" + ext
}

// isFlagSet reports whether a flag was explicitly provided.
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
