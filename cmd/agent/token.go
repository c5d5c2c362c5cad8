// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// tokenFile tracks a bearer token kept on disk by an external issuer, so a
// rotated token is picked up by the next reconnect.
type tokenFile struct {
	path string

	mu   sync.Mutex
	last string
}

// readToken returns the trimmed contents of path.
func readToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

func newTokenFile(path string) (*tokenFile, string, error) {
	token, err := readToken(path)
	if err != nil {
		return nil, "", err
	}
	return &tokenFile{path: path, last: token}, token, nil
}

// refresh re-reads the file and passes a changed token to set. It reports
// whether set was called.
func (f *tokenFile) refresh(set func(string)) (bool, error) {
	token, err := readToken(f.path)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	changed := token != f.last
	f.last = token
	f.mu.Unlock()
	if changed {
		set(token)
	}
	return changed, nil
}
