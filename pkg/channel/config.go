package channel

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the layout of the channel registry file.
	Config struct {
		Channels []ChannelConfig `yaml:"channels"`
	}

	// ChannelConfig describes a single channel. When ParaID is set, ID and FeeAccount may be omitted and are
	// derived from it.
	ChannelConfig struct {
		Name       string  `yaml:"name"`
		ParaID     *uint32 `yaml:"paraId"`
		ID         string  `yaml:"id"`
		Gateway    string  `yaml:"gateway"`
		FeeAccount string  `yaml:"feeAccount"`
	}
)

// ParseConfig parses a YAML channel registry document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse channel config: %w", err)
	}
	return &cfg, nil
}

// ToChannel validates the entry and resolves derived fields.
func (cc *ChannelConfig) ToChannel() (Channel, error) {
	var c Channel

	if !common.IsHexAddress(cc.Gateway) {
		return c, fmt.Errorf("channel %q: invalid gateway address %q", cc.Name, cc.Gateway)
	}
	c.Gateway = common.HexToAddress(cc.Gateway)

	switch {
	case cc.ID != "":
		id, err := localCommon.StringToChannelID(cc.ID)
		if err != nil {
			return c, fmt.Errorf("channel %q: %w", cc.Name, err)
		}
		c.ID = id
	case cc.ParaID != nil:
		c.ID = localCommon.ChannelIDFromParaID(*cc.ParaID)
	default:
		return c, fmt.Errorf("channel %q: either id or paraId must be set", cc.Name)
	}

	switch {
	case cc.FeeAccount != "":
		acct, err := localCommon.StringToAccountID(cc.FeeAccount)
		if err != nil {
			return c, fmt.Errorf("channel %q: %w", cc.Name, err)
		}
		c.FeeAccount = acct
	case cc.ParaID != nil:
		c.FeeAccount = localCommon.SiblingSovereignAccount(*cc.ParaID)
	default:
		return c, fmt.Errorf("channel %q: either feeAccount or paraId must be set", cc.Name)
	}

	return c, nil
}

// NewRegistryFromConfig builds a registry holding every channel of the config.
func NewRegistryFromConfig(cfg *Config) (*Registry, error) {
	r := NewRegistry()
	var errs error
	for i := range cfg.Channels {
		c, err := cfg.Channels[i].ToChannel()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if err := r.Register(c); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

// LoadRegistryFile reads the channel registry from a YAML file.
func LoadRegistryFile(fileName string) (*Registry, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel config %s: %w", fileName, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return NewRegistryFromConfig(cfg)
}
