// Package envdetect classifies the hosting environment from a couple of
// well-known environment variables. The result is used for display only.
package envdetect

import "os"

type Kind string

const (
	Managed Kind = "managed"
	Sandbox Kind = "sandbox"
	Local   Kind = "local"
)

const (
	ManagedRuntimeVar = "DATABRICKS_RUNTIME_VERSION"
	SandboxIDVar      = "REPL_ID"
	SandboxDBURLVar   = "REPLIT_DB_URL"
)

// LookupFunc matches the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Detect returns Managed if the managed-runtime marker is set, else Sandbox if
// either sandbox variable is set, else Local. Empty values count as unset.
func Detect(lookup LookupFunc) Kind {
	if lookup == nil {
		return Local
	}
	if isSet(lookup, ManagedRuntimeVar) {
		return Managed
	}
	if isSet(lookup, SandboxIDVar) || isSet(lookup, SandboxDBURLVar) {
		return Sandbox
	}
	return Local
}

func FromOS() Kind {
	return Detect(os.LookupEnv)
}

func (k Kind) Label() string {
	switch k {
	case Managed:
		return "Databricks"
	case Sandbox:
		return "Replit"
	case Local:
		return "Local"
	default:
		return "Unknown"
	}
}

func (k Kind) String() string { return string(k) }

func isSet(lookup LookupFunc, key string) bool {
	v, ok := lookup(key)
	return ok && v != ""
}
