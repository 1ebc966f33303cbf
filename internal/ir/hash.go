package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainCodeObject is the domain prefix for code object fingerprints.
// The version suffix allows the algorithm to migrate.
const DomainCodeObject = "stepc/codeobject/v1"

// Key is a code object fingerprint: 64 lowercase hex characters.
type Key string

// Short returns the first 12 characters, for logs.
func (k Key) Short() string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the cache key for a statement sequence compiled
// against a schema with a given toolchain.
//
// Statements are hashed in order. Schema entries are hashed sorted by name,
// so the order a caller lists variables in does not matter. Every schema
// entry is hashed, including ones the statements never mention.
func Fingerprint(stmts []Statement, schema Schema, toolchainID string) (Key, error) {
	if err := schema.Validate(); err != nil {
		return "", fmt.Errorf("Fingerprint: %w", err)
	}
	if err := checkStatementNames(stmts); err != nil {
		return "", fmt.Errorf("Fingerprint: %w", err)
	}
	obj := IRObject{
		"ir_version": IRString(IRVersion),
		"statements": StatementsValue(stmts),
		"schema":     SchemaValue(schema),
		"toolchain":  IRString(toolchainID),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return Key(hashWithDomain(DomainCodeObject, canonical)), nil
}

// checkStatementNames applies CheckName to every target, variable
// reference and function name in stmts.
func checkStatementNames(stmts []Statement) error {
	var walk func(Expr) error
	walk = func(e Expr) error {
		switch e := e.(type) {
		case Ref:
			return CheckName(e.Name)
		case Unary:
			return walk(e.X)
		case Binary:
			if err := walk(e.X); err != nil {
				return err
			}
			return walk(e.Y)
		case Call:
			if err := CheckName(e.Func); err != nil {
				return err
			}
			for _, a := range e.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for i, s := range stmts {
		if err := CheckName(s.Target); err != nil {
			return fmt.Errorf("statements[%d]: %w", i, err)
		}
		if err := walk(s.Expr); err != nil {
			return fmt.Errorf("statements[%d]: %w", i, err)
		}
	}
	return nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(stmts []Statement, schema Schema, toolchainID string) Key {
	k, err := Fingerprint(stmts, schema, toolchainID)
	if err != nil {
		panic(err)
	}
	return k
}
