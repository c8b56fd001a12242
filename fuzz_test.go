// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockfmt

import (
	"bytes"
	"testing"
)

// FuzzOpen feeds arbitrary bytes through the default Registry the way the
// teacher's legacy go-fuzz Fuzz(data []byte) int entry point fed them
// through NewBytes+Parse: a malformed or truncated input must fail with an
// error, never panic.
func FuzzOpen(f *testing.F) {
	f.Add(buildMinimalNKCG())
	f.Add([]byte("NKCG"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		g, _, err := Open(bytes.NewReader(data))
		if err != nil {
			return
		}
		// A successful Open must always produce a graph whose Save
		// doesn't itself panic or error on well-formed in-memory state.
		var out bytes.Buffer
		if _, err := Save(g, &out); err != nil {
			t.Fatalf("Save of a successfully Open'd graph failed: %v", err)
		}
	})
}
