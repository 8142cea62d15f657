package p2p

import "fmt"

// ConfigError reports an invalid Settings value, returned synchronously
// from New (spec §4.7: "new ... validates settings"; §7 error table).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("p2p: invalid setting %s: %s", e.Field, e.Reason)
}
