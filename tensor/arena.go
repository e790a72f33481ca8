// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/onnxrun/internal/memory"

// Arena recycles tensor buffers per named context. Sessions own one arena
// each; most callers never create one directly.
type Arena = memory.Arena

// ArenaStats counts arena allocations, reuses and releases.
type ArenaStats = memory.Stats

// Host allocates the arrays behind numeric tensors.
type Host = memory.Host

// Native is the default host backed by Go slices.
var Native = memory.Native

// NewArena creates an arena allocating from host (Native when nil).
func NewArena(host Host) *Arena {
	if host == nil {
		host = Native
	}
	return memory.NewArena(memory.WithHost(host))
}
