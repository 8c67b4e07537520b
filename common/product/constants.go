/*
 * === This file is part of ALICE O² ===
 *
 * Copyright 2024 CERN and copyright holders of ALICE O².
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 * In applying this license CERN does not waive the privileges and
 * immunities granted to it by virtue of its status as an
 * Intergovernmental Organization or submit itself to any jurisdiction.
 */

package product

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var ( // Acquired from -ldflags="-X=..." at build time
	VERSION_MAJOR = "0"
	VERSION_MINOR = "0"
	VERSION_PATCH = "0"
	BUILD         = ""
)

var (
	NAME             = "gunconf"
	PRETTY_SHORTNAME = "gunconf"
	PRETTY_FULLNAME  = "Light Gun Configuration Controller"
	VERSION          string
	VERSION_BUILD    string
)

// readVersionFile picks VERSION_MAJOR/MINOR/PATCH := N lines out of a VERSION
// file, leaving the current values alone for anything missing.
func readVersionFile(path string) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(contents), "\n") {
		key, value, ok := strings.Cut(line, ":=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "VERSION_MAJOR":
			VERSION_MAJOR = value
		case "VERSION_MINOR":
			VERSION_MINOR = value
		case "VERSION_PATCH":
			VERSION_PATCH = value
		}
	}
}

// readBuildFromGit sets BUILD to the short hash of HEAD in the repository at
// repoPath, like git rev-parse --short HEAD. Best effort.
func readBuildFromGit(repoPath string) {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return
	}

	h, err := r.ResolveRevision(plumbing.Revision("HEAD"))
	if err != nil {
		return
	}
	BUILD = h.String()[:7]
}

func init() {
	// built with go build directly, without ldflags
	if VERSION_MAJOR == "0" && VERSION_MINOR == "0" && VERSION_PATCH == "0" && BUILD == "" {
		if exe, err := os.Executable(); err == nil {
			basePath := filepath.Dir(filepath.Dir(exe))
			readVersionFile(filepath.Join(basePath, "VERSION"))
			readBuildFromGit(basePath)
		}
	}

	VERSION = strings.Join([]string{VERSION_MAJOR, VERSION_MINOR, VERSION_PATCH}, ".")
	VERSION_BUILD = VERSION
	if BUILD != "" {
		VERSION_BUILD = strings.Join([]string{VERSION, BUILD}, "-")
	}
}
