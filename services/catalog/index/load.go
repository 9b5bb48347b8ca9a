// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// ErrManifestVersion marks a manifest written by an incompatible builder.
var ErrManifestVersion = errors.New("unsupported manifest version")

// LoadFromFile reads a manifest file, checks its schema version, and
// returns the flattened index together with the decoded manifest.
func LoadFromFile(path string) (*Index, *datatypes.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m datatypes.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.Version != datatypes.ManifestVersion {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrManifestVersion, m.Version, datatypes.ManifestVersion)
	}
	return FromManifest(&m), &m, nil
}
