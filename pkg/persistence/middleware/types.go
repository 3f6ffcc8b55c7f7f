// Package middleware wraps session stores to protect what they persist:
// sealing snapshots with AES-GCM, masking captured values and redacting
// transcripts.
package middleware

import "github.com/aretw0/parley/pkg/ports"

// Middleware allows wrapping a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore

// TranscriptMiddleware allows wrapping a TranscriptStore to add behavior.
type TranscriptMiddleware func(ports.TranscriptStore) ports.TranscriptStore
