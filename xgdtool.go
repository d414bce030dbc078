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

// Package xgdtool is the library entry point the CLI and any embedder
// calls: it wires reader, xiso, writer, extractor, cert and titledb
// together into a single Convert operation driven by an Options value.
package xgdtool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/wiredopposite/xgdtool/cert"
	"github.com/wiredopposite/xgdtool/extractor"
	"github.com/wiredopposite/xgdtool/reader"
	"github.com/wiredopposite/xgdtool/splitio"
	"github.com/wiredopposite/xgdtool/titledb"
	"github.com/wiredopposite/xgdtool/writer"
	"github.com/wiredopposite/xgdtool/xgderr"
	"github.com/wiredopposite/xgdtool/xgdlog"
	"github.com/wiredopposite/xgdtool/xiso"
)

// Format selects the output container.
type Format int

const (
	FormatXISO Format = iota
	FormatCCI
	FormatCSO
	FormatGoD
	FormatExtract
)

func (f Format) String() string {
	switch f {
	case FormatCCI:
		return "cci"
	case FormatCSO:
		return "cso"
	case FormatGoD:
		return "god"
	case FormatExtract:
		return "extract"
	default:
		return "xiso"
	}
}

// ScrubMode controls how much of the source image's raw bytes survive
// into the output, mirroring the original tool's --partial-scrub and
// --full-scrub flags.
type ScrubMode int

const (
	// ScrubNone copies every sector from the source image verbatim for
	// XISO output; CCI, CSO, and GoD output is always rebuilt from the
	// directory listing, as under ScrubFull.
	ScrubNone ScrubMode = iota
	// ScrubPartial, for XISO output, copies sectors up to and including
	// the last one in the source's data_sectors set and zeroes every
	// copied sector outside that set. Other formats are rebuilt as under
	// ScrubFull.
	ScrubPartial
	// ScrubFull discards the source's raw layout entirely and rebuilds
	// the output from its directory listing through the AVL layout
	// engine, the same path a fresh directory-to-image build takes.
	ScrubFull
)

// Options configures a single conversion. Validate before calling
// Convert; Convert itself assumes a validated Options.
type Options struct {
	InputPath string
	OutputDir string
	Format    Format
	Scrub     ScrubMode

	Split   bool
	Rename  bool
	Offline bool
	Debug   bool
	Quiet   bool

	// TitleDB, when set, is consulted for a display title name keyed by
	// the located certificate's unique_name, used for Rename and for a
	// GoD output's Live header title.
	TitleDB titledb.Provider
}

// Validate reports a Miscellaneous xgderr.Error for any combination
// Convert cannot act on.
func (o Options) Validate() error {
	if o.InputPath == "" {
		return xgderr.New(xgderr.Miscellaneous, "Options.Validate", "", fmt.Errorf("input path is required"))
	}
	if o.OutputDir == "" {
		return xgderr.New(xgderr.Miscellaneous, "Options.Validate", "", fmt.Errorf("output directory is required"))
	}
	if o.Format < FormatXISO || o.Format > FormatExtract {
		return xgderr.New(xgderr.Miscellaneous, "Options.Validate", "", fmt.Errorf("unknown format %d", o.Format))
	}
	if o.Debug && o.Quiet {
		return xgderr.New(xgderr.Miscellaneous, "Options.Validate", "", fmt.Errorf("--debug and --quiet are mutually exclusive"))
	}
	if o.Split && o.Format != FormatXISO && o.Format != FormatCCI && o.Format != FormatCSO {
		return xgderr.New(xgderr.Miscellaneous, "Options.Validate", "", fmt.Errorf("--split has no effect on %s output", o.Format))
	}
	return nil
}

// Result reports what a successful Convert produced.
type Result struct {
	OutputPaths []string
	UniqueName  string
	TitleName   string
}

// Convert runs a single end-to-end conversion described by opts. It
// opens the input, locates the title's certificate (best-effort; a
// missing certificate only blocks GoD output and the offline title
// lookup, and Rename then uses the cleaned input name), resolves a
// display title name, and dispatches to
// the requested output format.
func Convert(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.Quiet {
		xgdlog.SetLevel(xgdlog.LevelQuiet)
	} else if opts.Debug {
		xgdlog.SetLevel(xgdlog.LevelDebug)
	} else {
		xgdlog.SetLevel(xgdlog.LevelInfo)
	}

	r, err := openInput(opts.InputPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if err := ctx.Err(); err != nil {
		return nil, xgderr.New(xgderr.Cancelled, "xgdtool.Convert", opts.InputPath, err)
	}

	c, certErr := cert.Locate(r)
	if certErr != nil {
		xgdlog.Debug("no executable certificate found in %s: %v", opts.InputPath, certErr)
	}

	titleName := titleNameFor(opts, c, certErr == nil)
	outName := inputBaseName(opts.InputPath)
	if opts.Rename && titleName != "" {
		outName = titleName
	}

	fsys := afero.NewOsFs()
	if err := fsys.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, xgderr.New(xgderr.DirectoryCreate, "xgdtool.Convert", opts.OutputDir, err)
	}

	if opts.Format == FormatExtract {
		return convertExtract(fsys, opts, r, outName, titleName)
	}
	return convertImage(ctx, opts, r, c, certErr == nil, outName, titleName)
}

// inputBaseName is the input's own file or directory name with any
// extension stripped, used as the output name whenever Rename is false.
func inputBaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// titleNameFor resolves the display title name: the offline database
// (keyed by unique_name) wins when present and opts.Offline is set,
// otherwise the cleaned input file/directory base name is used.
func titleNameFor(opts Options, c cert.Cert, haveCert bool) string {
	if opts.Offline && opts.TitleDB != nil && haveCert {
		if e, ok := opts.TitleDB.Lookup(c.UniqueName()); ok && e.TitleName != "" {
			return e.TitleName
		}
	}
	return cert.CleanTitleName(inputBaseName(opts.InputPath))
}

func convertExtract(fsys afero.Fs, opts Options, r *reader.Reader, outName, titleName string) (*Result, error) {
	outDir := filepath.Join(opts.OutputDir, outName)
	progress := xgdlog.NewProgress("Extracting")
	if err := extractor.Extract(fsys, outDir, r, extractor.Options{Progress: progress.Update}); err != nil {
		return nil, err
	}
	return &Result{OutputPaths: []string{outDir}, TitleName: titleName}, nil
}

func convertImage(ctx context.Context, opts Options, r *reader.Reader, c cert.Cert, haveCert bool, outName, titleName string) (*Result, error) {
	if opts.Scrub != ScrubFull && opts.Format == FormatXISO {
		return passthroughXISO(ctx, opts, r, outName)
	}

	entries, err := r.DirectoryEntries()
	if err != nil {
		return nil, err
	}
	tree, err := xiso.BuildTreeFromEntries(entries)
	if err != nil {
		return nil, err
	}
	rootSize := xiso.ComputeLayout(tree)
	if err := xiso.AssignSectors(tree, rootSize); err != nil {
		return nil, err
	}
	totalSize := xiso.TotalImageSize(tree, rootSize)

	fileTime, err := r.FileTime()
	if err != nil {
		return nil, err
	}
	src := writer.ReaderSource{R: r}

	var paths []string
	switch opts.Format {
	case FormatCCI:
		paths, err = writer.WriteCCI(filepath.Join(opts.OutputDir, outName+".cci"), tree, rootSize, totalSize, fileTime, src, writer.WriteCCIOptions{Split: opts.Split})
	case FormatCSO:
		paths, err = writer.WriteCSO(filepath.Join(opts.OutputDir, outName+".cso"), tree, rootSize, totalSize, fileTime, src, writer.WriteCSOOptions{Split: opts.Split})
	case FormatGoD:
		if !haveCert {
			return nil, xgderr.New(xgderr.MissingFile, "xgdtool.Convert", opts.InputPath, fmt.Errorf("GoD output requires a located executable certificate"))
		}
		meta := c.GoDMetadata(titleName, nil)
		paths, err = writer.WriteGoD(opts.OutputDir, tree, rootSize, totalSize, fileTime, src, meta)
	default: // FormatXISO, full-scrub rebuild
		paths, err = writer.WriteXISO(filepath.Join(opts.OutputDir, outName+".iso"), tree, rootSize, totalSize, fileTime, src, writer.WriteXISOOptions{Split: opts.Split})
	}
	if err != nil {
		return nil, err
	}

	result := &Result{OutputPaths: paths, TitleName: titleName}
	if haveCert {
		result.UniqueName = c.UniqueName()
	}
	return result, nil
}

// openInput opens the container at path, dispatching on extension for a
// single file and falling back to OpenGoD for a directory (GoD's own
// probe walks for the "<title>.data" part directory within it). Batch
// directories are expanded by the CLI into individual Convert calls, and
// a split XISO member is mapped to its pair by reader.OpenXISO. There is
// no archive (ZAR) branch: a file with any extension other than .cci or
// .cso, an archive included, is opened as a raw XISO.
func openInput(path string) (*reader.Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "xgdtool.openInput", path, err)
	}
	if info.IsDir() {
		return reader.OpenGoD(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cci":
		return reader.OpenCCI(path)
	case ".cso":
		return reader.OpenCSO(path)
	default:
		return reader.OpenXISO(path)
	}
}

// passthroughXISO implements ScrubNone/ScrubPartial for an XISO target:
// a straight sector-for-sector copy (spec.md's "pass-through/partial
// scrub"), zeroing non-data sectors under ScrubPartial. CCI/CSO/GoD
// targets have no raw pass-through writer in this module (only the
// AVL-rebuild path WriteCCI/WriteCSO/WriteGoD already use), so for those
// formats every ScrubMode runs through convertImage's rebuild path
// instead; see DESIGN.md.
func passthroughXISO(ctx context.Context, opts Options, r *reader.Reader, outName string) (*Result, error) {
	var dataSectors map[uint32]struct{}
	total := r.TotalSectors()
	if opts.Scrub == ScrubPartial {
		ds, err := r.DataSectors()
		if err != nil {
			return nil, err
		}
		dataSectors = ds

		var maxData uint32
		for s := range ds {
			if s > maxData {
				maxData = s
			}
		}
		if maxData+1 < total {
			total = maxData + 1
		}
	}

	outPath := filepath.Join(opts.OutputDir, outName+".iso")

	cutSize := int64(0)
	if opts.Split {
		cutSize = writer.XISOSplitMargin
	}
	out, err := splitio.NewWriter(outPath, cutSize)
	if err != nil {
		return nil, xgderr.New(xgderr.FileOpen, "xgdtool.passthroughXISO", outPath, err)
	}
	progress := xgdlog.NewProgress("Writing XISO")
	for s := uint32(0); s < total; s++ {
		if err := ctx.Err(); err != nil {
			_ = out.Close(false)
			return nil, xgderr.New(xgderr.Cancelled, "xgdtool.passthroughXISO", opts.InputPath, err)
		}

		var buf [xiso.SectorSize]byte
		if dataSectors != nil {
			if _, ok := dataSectors[s]; !ok {
				// leave buf zeroed
			} else {
				b, rErr := r.ReadSector(s)
				if rErr != nil {
					_ = out.Close(false)
					return nil, xgderr.New(xgderr.FileRead, "xgdtool.passthroughXISO", opts.InputPath, rErr)
				}
				buf = b
			}
		} else {
			b, rErr := r.ReadSector(s)
			if rErr != nil {
				_ = out.Close(false)
				return nil, xgderr.New(xgderr.FileRead, "xgdtool.passthroughXISO", opts.InputPath, rErr)
			}
			buf = b
		}

		if _, wErr := out.WriteAt(buf[:], int64(s)*xiso.SectorSize); wErr != nil {
			_ = out.Close(false)
			return nil, xgderr.New(xgderr.FileWrite, "xgdtool.passthroughXISO", outPath, wErr)
		}
		progress.Update(uint64(s+1), uint64(total))
	}

	if err := out.Close(true); err != nil {
		return nil, xgderr.New(xgderr.FileWrite, "xgdtool.passthroughXISO", outPath, err)
	}

	paths := []string{outPath}
	if out.NumParts() > 1 {
		paths = make([]string, out.NumParts())
		for i := range paths {
			paths[i] = splitio.PartPath(outPath, i+1)
		}
	}
	return &Result{OutputPaths: paths}, nil
}
