package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	Commitment  string `yaml:"commitment"`
	Description string `yaml:"description"`
}

// Kind returns the chain family, defaulting to EVM when type is omitted.
func (d ChainDefinition) Kind() (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case "", "evm", "ethereum":
		return KindEVM, nil
	case "solana", "svm":
		return KindSolana, nil
	default:
		return "", fmt.Errorf("不支持的链类型 %s", d.Type)
	}
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if strings.TrimSpace(def.RPCURL) == "" {
			return ChainDefinitions{}, fmt.Errorf("链 %s 缺少 rpc_url", name)
		}
		if _, err := def.Kind(); err != nil {
			return ChainDefinitions{}, fmt.Errorf("链 %s: %w", name, err)
		}
	}
	return defs, nil
}
