package ir

// Version constants for the fact encoding and engine.
const (
	// FormatVersion is the canonical fact encoding version.
	FormatVersion = "1"

	// EngineVersion is the nexus engine version.
	EngineVersion = "0.1.0"
)
