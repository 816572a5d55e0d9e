// Package validation provides input validation for verimatch.
package validation

import (
	"errors"
	"strings"

	"golang.org/x/mod/semver"
)

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateTxHash validates a transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 {
		return errors.New("invalid transaction hash length: must be 66 characters (0x + 64 hex)")
	}
	if !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid transaction hash: must start with 0x")
	}
	for _, c := range hash[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid transaction hash: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateCompilerVersion validates a compiler version string. Both the
// short form ("0.8.20") and the long form with a commit tag
// ("0.8.20+commit.a1b79de6") are accepted, with or without a leading 'v'.
func ValidateCompilerVersion(v string) error {
	normalized := NormalizeCompilerVersion(v)
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}

	// semver library expects version to start with 'v'
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid compiler version: must be in format X.Y.Z or X.Y.Z+commit.HASH")
	}

	// Reject bare major or major.minor: the release list never carries them.
	core := normalized
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}

	return nil
}

// NormalizeCompilerVersion normalizes a compiler version string (strips the
// leading 'v' explorers prepend)
func NormalizeCompilerVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// IsNightly checks if a compiler version is a nightly build
func IsNightly(v string) bool {
	return strings.Contains(NormalizeCompilerVersion(v), "-nightly")
}

// CompareCompilerVersions compares two compiler versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareCompilerVersions(v1, v2 string) int {
	n1 := "v" + NormalizeCompilerVersion(v1)
	n2 := "v" + NormalizeCompilerVersion(v2)
	return semver.Compare(n1, n2)
}
