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

// Command xgdtool-dbgen builds the gob.gz offline title database xgdtool
// consults for -offline lookups, from a CSV listing of
// unique_name,title_name,folder_name[,icon_path].
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wiredopposite/xgdtool/titledb"
)

var (
	inPath  = flag.String("in", "", "input CSV listing: unique_name,title_name,folder_name[,icon_path] (required)")
	outPath = flag.String("out", "", "output gob.gz database path (required)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -in titles.csv -out titles.gob.gz\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Builds the offline title database xgdtool's -offline flag consults.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -in and -out are both required")
		flag.Usage()
		os.Exit(1)
	}

	db, err := buildDatabase(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := db.SaveFile(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving database: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d entries to %s\n", len(db), *outPath)
}

// buildDatabase reads rows of unique_name,title_name,folder_name[,icon_path]
// from the CSV at path. A present icon_path is read as the entry's icon
// bytes; a missing or empty one leaves IconData nil.
func buildDatabase(path string) (titledb.Database, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied CSV path
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	db := titledb.NewDatabase()
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%s: row %q has fewer than 3 fields", path, rec)
		}

		entry := titledb.Entry{TitleName: rec[1], FolderName: rec[2]}
		if len(rec) >= 4 && rec[3] != "" {
			icon, err := os.ReadFile(rec[3]) //nolint:gosec // operator-supplied icon path from the same trusted CSV
			if err != nil {
				return nil, fmt.Errorf("read icon %s for %s: %w", rec[3], rec[0], err)
			}
			entry.IconData = icon
		}
		db[rec[0]] = entry
	}
	return db, nil
}
