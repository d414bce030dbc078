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

package reader

import "fmt"

// ogxScanEnd is the exclusive end of the sector range the OGX
// security-sector detector scans, and also the Redump total-sector count that gates the scan
// (per the reference implementation's hard-coded threshold).
const ogxScanEnd = uint32(0x345B60)

// addOGXSecuritySectors scans for the fixed-size all-zero runs an OGX
// (Xbox original) disc uses for its security sectors and unions any
// exact 0x1000-sector run into the data-sector set. Images whose total
// sector count doesn't match the known Redump size are assumed already
// compact and are left untouched.
func addOGXSecuritySectors(r *Reader, sectors map[uint32]struct{}) error {
	if r.TotalSectors() != ogxScanEnd {
		return nil
	}

	var runStart, runLen uint32
	compareMode := false

	flush := func() {
		if runLen == 0x1000 {
			for i := uint32(0); i < runLen; i++ {
				sectors[runStart+i] = struct{}{}
			}
		}
	}

	for s := uint32(0); s < ogxScanEnd; s++ {
		if _, isData := sectors[s]; isData {
			flush()
			runLen = 0
			continue
		}
		zero, err := isZeroSector(r, s)
		if err != nil {
			return err
		}
		if !zero {
			flush()
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = s
		}
		runLen++
		if runLen > 0x1000 {
			if compareMode {
				return fmt.Errorf("ogx security sector run starting at %d exceeds expected size", runStart)
			}
			compareMode = true
		}
	}
	flush()
	return nil
}

func isZeroSector(r *Reader, sector uint32) (bool, error) {
	buf, err := r.ReadSector(sector)
	if err != nil {
		return false, fmt.Errorf("read sector %d for ogx scan: %w", sector, err)
	}
	for _, b := range buf {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}
