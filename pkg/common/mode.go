package common

import (
	"fmt"
	"strings"
)

type Environment string

const (
	MainNet      Environment = "prod"
	UnsafeDevNet Environment = "dev"  // local devnet; balances may be set through the admin API
	TestNet      Environment = "test" // public testnet
	GoTest       Environment = "unit-test"
)

// ParseEnvironment parses a string into the corresponding Environment value, allowing various reasonable variations.
func ParseEnvironment(str string) (Environment, error) {
	str = strings.ToLower(str)
	if str == "prod" || str == "mainnet" {
		return MainNet, nil
	}
	if str == "test" || str == "testnet" {
		return TestNet, nil
	}
	if str == "dev" || str == "devnet" || str == "unsafedevnet" {
		return UnsafeDevNet, nil
	}
	if str == "unit-test" || str == "gotest" {
		return GoTest, nil
	}
	return UnsafeDevNet, fmt.Errorf("invalid environment string: %s", str)
}

// AllowsBalanceOverride reports whether privileged callers may set account balances directly.
// This is only ever true outside of the public networks.
func (e Environment) AllowsBalanceOverride() bool {
	return e == UnsafeDevNet || e == GoTest
}
