package model

// ConfigState enables or disables a configured importer feature.
type ConfigState string

const (
	ConfigStateUnknown  ConfigState = "UNKNOWN"
	ConfigStateActive   ConfigState = "ACTIVE"
	ConfigStateInactive ConfigState = "INACTIVE"
)

// Credential is an identifier/token pair for a partner feed. Depending on
// the source this is a username/password, a group ID/access token, or a
// file location with no token at all.
type Credential struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Token      string `json:"token,omitempty" yaml:"token"`
}

// ImporterConfig is the stored configuration for one importer source,
// keyed by source type.
type ImporterConfig struct {
	Type  SourceType  `json:"type" yaml:"type"`
	State ConfigState `json:"state" yaml:"state"`
	// DiagnosticsState controls whether review decisions are regularly
	// exported back to this source.
	DiagnosticsState ConfigState `json:"diagnostics_state" yaml:"diagnostics_state"`
	Credential       Credential  `json:"credential" yaml:"credential"`
}

// Enabled reports whether the importer may be run.
func (c *ImporterConfig) Enabled() bool {
	return c.State == ConfigStateActive
}
