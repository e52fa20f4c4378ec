package keymaterial

import (
	"errors"
	"fmt"
	"sort"
)

// Type is the declared role of a key.
type Type string

const (
	TypePrivate Type = "private"
	TypePublic  Type = "public"
	TypeSecret  Type = "secret"
)

func (t Type) valid() bool {
	switch t {
	case TypePrivate, TypePublic, TypeSecret:
		return true
	default:
		return false
	}
}

// Usage is an operation a key is allowed to take part in.
type Usage string

const (
	UsageDecrypt    Usage = "decrypt"
	UsageDeriveBits Usage = "deriveBits"
	UsageDeriveKey  Usage = "deriveKey"
	UsageEncrypt    Usage = "encrypt"
	UsageSign       Usage = "sign"
	UsageUnwrapKey  Usage = "unwrapKey"
	UsageVerify     Usage = "verify"
	UsageWrapKey    Usage = "wrapKey"
)

func (u Usage) valid() bool {
	switch u {
	case UsageDecrypt, UsageDeriveBits, UsageDeriveKey, UsageEncrypt,
		UsageSign, UsageUnwrapKey, UsageVerify, UsageWrapKey:
		return true
	default:
		return false
	}
}

// Algorithm describes the cipher a key is meant for. Composite algorithms list
// their parts in Components, keyed by role.
type Algorithm struct {
	Name       string
	Length     int // bits, optional
	Components map[string]Algorithm
}

func (a Algorithm) clone() Algorithm {
	out := Algorithm{Name: a.Name, Length: a.Length}
	if len(a.Components) > 0 {
		out.Components = make(map[string]Algorithm, len(a.Components))
		for k, v := range a.Components {
			out.Components[k] = v.clone()
		}
	}
	return out
}

func (a Algorithm) validate() error {
	if a.Name == "" {
		return errors.New("algorithm name is required")
	}
	if a.Length < 0 {
		return fmt.Errorf("algorithm length must not be negative, got %d", a.Length)
	}
	roles := make([]string, 0, len(a.Components))
	for role := range a.Components {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		c := a.Components[role]
		if c.Name == "" {
			return fmt.Errorf("algorithm component %q name is required", role)
		}
		if c.Length < 0 {
			return fmt.Errorf("algorithm component %q length must not be negative", role)
		}
	}
	return nil
}

func validateUsages(usages []Usage) error {
	for _, u := range usages {
		if !u.valid() {
			return fmt.Errorf("unknown key usage %q", u)
		}
	}
	return nil
}
