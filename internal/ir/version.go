package ir

// Version constants for the IR schema and the fingerprint domain.
const (
	// IRVersion is the statement IR version. Bumping it changes every fingerprint.
	IRVersion = "1"

	// EngineVersion is the stepc runtime version recorded in artifact manifests.
	EngineVersion = "0.1.0"
)
