// Copyright (c) 2025 the xgdtool contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of xgdtool.
//
// xgdtool is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xgdtool is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with xgdtool.  If not, see <https://www.gnu.org/licenses/>.

// Command xgdtool converts Xbox and Xbox 360 optical-disc images between
// XISO, CCI, CSO, GoD and extracted-directory form.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wiredopposite/xgdtool"
	"github.com/wiredopposite/xgdtool/archive"
	"github.com/wiredopposite/xgdtool/titledb"
)

const appVersion = "0.1.0"

var (
	extractFlag = flag.Bool("extract", false, "extract to a directory")
	xisoFlag    = flag.Bool("xiso", false, "write a raw XISO")
	godFlag     = flag.Bool("god", false, "write a GoD layout")
	cciFlag     = flag.Bool("cci", false, "write a CCI image")
	csoFlag     = flag.Bool("cso", false, "write a CSO image")
	zarFlag     = flag.Bool("zar", false, "write a ZAR archive (unsupported: no archive writer in this build)")
	xbeFlag     = flag.Bool("xbe", false, "write a standalone default.xbe (unsupported in this build)")
	ogxboxFlag  = flag.Bool("ogxbox", false, "profile: extract + -rename")
	xbox360Flag = flag.Bool("xbox360", false, "profile: GoD, full scrub")
	xemuFlag    = flag.Bool("xemu", false, "profile: XISO, full scrub, no split")
	xeniaFlag   = flag.Bool("xenia", false, "profile: ZAR (unsupported: no archive writer in this build)")

	partialScrubFlag = flag.Bool("partial-scrub", false, "zero sectors outside the detected data-sector set")
	fullScrubFlag    = flag.Bool("full-scrub", false, "rebuild the output from a fresh directory listing")
	splitFlag        = flag.Bool("split", false, "split XISO/CCI/CSO output at the format's split margin")
	renameFlag       = flag.Bool("rename", false, "name the output from the -offline database title, else the input's name without parenthesised qualifiers")
	attachXBEFlag    = flag.Bool("attach-xbe", false, "attach a patched boot XBE (unsupported in this build)")
	amPatchFlag      = flag.Bool("am-patch", false, "allowed-media patch policy (unsupported in this build)")
	offlineFlag      = flag.Bool("offline", false, "resolve title names from -db instead of the input's own name")
	debugFlag        = flag.Bool("debug", false, "verbose logging")
	quietFlag        = flag.Bool("quiet", false, "suppress all non-error output")
	dbPathFlag       = flag.String("db", "", "path to an offline title database (gob.gz) for -offline")
	versionFlag      = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <input_path> [<output_directory>] <format-flag> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Converts Xbox and Xbox 360 optical-disc images between container formats.\n\n")
		fmt.Fprintf(os.Stderr, "Format flags (exactly one required): -extract -xiso -god -cci -cso -zar -xbe -ogxbox -xbox360 -xemu -xenia\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s game.iso out -cci -split\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s game.iso out -xbox360\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s GameDir out -extract -rename\n", os.Args[0])
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("xgdtool version %s\n", appVersion)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: input path required")
		flag.Usage()
		os.Exit(1)
	}
	inputPath := args[0]
	outputDir := "."
	if len(args) >= 2 {
		outputDir = args[1]
	}

	opts, err := optionsFromFlags(inputPath, outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	jobs, err := expandInputs(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var failed []string
	for _, job := range jobs {
		jobOpts := opts
		jobOpts.InputPath = job
		if _, err := xgdtool.Convert(context.Background(), jobOpts); err != nil {
			fmt.Fprintf(os.Stderr, "Error converting %s: %v\n", job, err)
			failed = append(failed, job)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d inputs failed\n", len(failed), len(jobs))
		os.Exit(1)
	}
}

// optionsFromFlags validates the mutually-exclusive format flags, applies
// the four fixed profiles, and, when -offline is set, loads the offline
// title database that -db names. InputPath is set to a placeholder here; the caller overwrites
// it per job from expandInputs.
func optionsFromFlags(inputPath, outputDir string) (xgdtool.Options, error) {
	if *attachXBEFlag || *amPatchFlag {
		return xgdtool.Options{}, fmt.Errorf("-attach-xbe and -am-patch are not supported by this build: no attach-xbe boot image asset is carried in this module")
	}
	if *zarFlag || *xeniaFlag || *xbeFlag {
		return xgdtool.Options{}, fmt.Errorf("ZAR and standalone-XBE output are not supported by this build: the archive package only reads ZAR members, it does not write them")
	}

	formatFlags := map[string]bool{
		"extract": *extractFlag, "xiso": *xisoFlag, "god": *godFlag,
		"cci": *cciFlag, "cso": *csoFlag,
		"ogxbox": *ogxboxFlag, "xbox360": *xbox360Flag, "xemu": *xemuFlag,
	}
	var chosen []string
	for name, set := range formatFlags {
		if set {
			chosen = append(chosen, name)
		}
	}
	if len(chosen) == 0 {
		return xgdtool.Options{}, fmt.Errorf("exactly one format flag is required")
	}
	if len(chosen) > 1 {
		return xgdtool.Options{}, fmt.Errorf("format flags are mutually exclusive, got %s", strings.Join(chosen, ", "))
	}

	opts := xgdtool.Options{
		InputPath: inputPath,
		OutputDir: outputDir,
		Split:     *splitFlag,
		Rename:    *renameFlag,
		Offline:   *offlineFlag,
		Debug:     *debugFlag,
		Quiet:     *quietFlag,
	}

	switch {
	case *extractFlag:
		opts.Format = xgdtool.FormatExtract
	case *xisoFlag:
		opts.Format = xgdtool.FormatXISO
	case *godFlag:
		opts.Format = xgdtool.FormatGoD
	case *cciFlag:
		opts.Format = xgdtool.FormatCCI
	case *csoFlag:
		opts.Format = xgdtool.FormatCSO
	case *ogxboxFlag:
		opts.Format = xgdtool.FormatExtract
		opts.Rename = true
	case *xbox360Flag:
		opts.Format = xgdtool.FormatGoD
		opts.Scrub = xgdtool.ScrubFull
	case *xemuFlag:
		opts.Format = xgdtool.FormatXISO
		opts.Scrub = xgdtool.ScrubFull
		opts.Split = false
	}

	switch {
	case *fullScrubFlag:
		opts.Scrub = xgdtool.ScrubFull
	case *partialScrubFlag:
		opts.Scrub = xgdtool.ScrubPartial
	}

	if *offlineFlag {
		if *dbPathFlag == "" {
			return xgdtool.Options{}, fmt.Errorf("-offline requires -db <path>")
		}
		db, err := titledb.LoadFile(*dbPathFlag)
		if err != nil {
			return xgdtool.Options{}, fmt.Errorf("loading -db %s: %w", *dbPathFlag, err)
		}
		opts.TitleDB = titledb.OfflineProvider{DB: db}
	}

	if err := opts.Validate(); err != nil {
		return xgdtool.Options{}, err
	}
	return opts, nil
}

// expandInputs resolves path to one or more per-input job paths. A
// directory is treated as a batch of inputs unless it looks like a single
// GoD root (a Data* file inside a *.data subdirectory within two levels)
// or a single extracted directory (a default.xbe/xex at its top level).
func expandInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if isGoDRoot(path) || isExtractedDir(path) {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read batch directory %s: %w", path, err)
	}
	var jobs []string
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.IsDir() {
			jobs = append(jobs, full)
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".iso", ".cci", ".cso":
			jobs = append(jobs, full)
		default:
			if archive.IsArchiveExtension(strings.ToLower(filepath.Ext(e.Name()))) {
				jobs = append(jobs, full)
			}
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no convertible inputs found under batch directory %s", path)
	}
	return jobs, nil
}

func isExtractedDir(dir string) bool {
	for _, name := range []string{"default.xbe", "default.xex"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func isGoDRoot(dir string) bool {
	found := false
	_ = filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || found {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if fi.IsDir() && strings.HasSuffix(strings.ToLower(fi.Name()), ".data") && depth <= 2 {
			inner, err := os.ReadDir(p)
			if err == nil {
				for _, e := range inner {
					if strings.HasPrefix(e.Name(), "Data") {
						found = true
						return filepath.SkipDir
					}
				}
			}
		}
		return nil
	})
	return found
}
