package env

import (
	"encoding"
	"fmt"
	"strings"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

var _ encoding.TextUnmarshaler = (*Environment)(nil)

func (e Environment) IsDevelopment() bool { return e == Development }
func (e Environment) IsProduction() bool  { return e == Production }

// UnmarshalText accepts the long names and dev/prod, case-insensitively.
func (e *Environment) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "development", "dev":
		*e = Development
	case "production", "prod":
		*e = Production
	default:
		return fmt.Errorf("unknown environment %q", text)
	}
	return nil
}
