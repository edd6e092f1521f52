package ir

// Version constants stamped on persisted plan documents.
const (
	// DocumentVersion is the plan document schema version.
	DocumentVersion = "1"

	// CompilerVersion is the streamplan compiler version.
	CompilerVersion = "0.1.0"
)
