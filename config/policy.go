package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"aura-identity-service/internal/domain"
)

// PolicyFile はポリシーファイル（YAML）の形式。
type PolicyFile struct {
	Recovery RecoveryPolicyConfig `yaml:"recovery"`
}

// RecoveryPolicyConfig はポリシーファイルの recovery セクション。
// 省略された項目は既定値のまま。
type RecoveryPolicyConfig struct {
	MinThreshold       *uint8  `yaml:"minThreshold"`
	MaxThreshold       *uint8  `yaml:"maxThreshold"`
	MaxTrustees        *uint8  `yaml:"maxTrustees"`
	Deposit            *uint64 `yaml:"deposit"`
	DelayBlocks        *uint64 `yaml:"delayBlocks"`
	ThresholdOnRemoval string  `yaml:"thresholdOnRemoval"`
	DIDCollision       string  `yaml:"didCollision"`
	GovernanceAccount  string  `yaml:"governanceAccount"`
}

// LoadPolicy は既定ポリシーに path のYAMLと RECOVERY_* 環境変数を順に重ねる。
// path が空の場合はファイルを読まない。
func LoadPolicy(path string) (domain.Policy, error) {
	policy := domain.DefaultPolicy()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return policy, fmt.Errorf("reading policy file: %w", err)
		}
		var parsed PolicyFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return policy, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
		MergePolicy(&policy, parsed.Recovery)
	}

	if err := ApplyPolicyEnvOverrides(&policy); err != nil {
		return policy, err
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// MergePolicy は src で指定された項目だけを dst に上書きする。
func MergePolicy(dst *domain.Policy, src RecoveryPolicyConfig) {
	if src.MinThreshold != nil {
		dst.MinThreshold = *src.MinThreshold
	}
	if src.MaxThreshold != nil {
		dst.MaxThreshold = *src.MaxThreshold
	}
	if src.MaxTrustees != nil {
		dst.MaxTrustees = *src.MaxTrustees
	}
	if src.Deposit != nil {
		dst.RecoveryDeposit = domain.Balance(*src.Deposit)
	}
	if src.DelayBlocks != nil {
		dst.RecoveryDelay = *src.DelayBlocks
	}
	if src.ThresholdOnRemoval != "" {
		dst.ThresholdOnRemoval = domain.ThresholdRemovalMode(strings.ToLower(src.ThresholdOnRemoval))
	}
	if src.DIDCollision != "" {
		dst.DIDCollision = domain.DIDCollisionMode(strings.ToLower(src.DIDCollision))
	}
	if src.GovernanceAccount != "" {
		dst.GovernanceAccount = domain.AccountID(src.GovernanceAccount)
	}
}

// ApplyPolicyEnvOverrides は RECOVERY_* 環境変数でポリシーを上書きする。
func ApplyPolicyEnvOverrides(p *domain.Policy) error {
	uint8Vars := []struct {
		key string
		dst *uint8
	}{
		{"RECOVERY_MIN_THRESHOLD", &p.MinThreshold},
		{"RECOVERY_MAX_THRESHOLD", &p.MaxThreshold},
		{"RECOVERY_MAX_TRUSTEES", &p.MaxTrustees},
	}
	for _, v := range uint8Vars {
		raw := getEnv(v.key, "")
		if raw == "" {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", domain.ErrInvalidPolicy, v.key, raw)
		}
		*v.dst = uint8(n)
	}

	if raw := getEnv("RECOVERY_DEPOSIT", ""); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: RECOVERY_DEPOSIT=%q", domain.ErrInvalidPolicy, raw)
		}
		p.RecoveryDeposit = domain.Balance(n)
	}
	if raw := getEnv("RECOVERY_DELAY", ""); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: RECOVERY_DELAY=%q", domain.ErrInvalidPolicy, raw)
		}
		p.RecoveryDelay = n
	}
	if raw := getEnv("RECOVERY_THRESHOLD_ON_REMOVAL", ""); raw != "" {
		p.ThresholdOnRemoval = domain.ThresholdRemovalMode(strings.ToLower(raw))
	}
	if raw := getEnv("RECOVERY_DID_COLLISION", ""); raw != "" {
		p.DIDCollision = domain.DIDCollisionMode(strings.ToLower(raw))
	}
	if raw := getEnv("RECOVERY_GOVERNANCE_ACCOUNT", ""); raw != "" {
		p.GovernanceAccount = domain.AccountID(raw)
	}
	return nil
}
