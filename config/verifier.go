package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forestrie/go-batchedmerkle/verifier"
)

// HasVerifyingKeys is false when no proof can be checked.
func (c *Config) HasVerifyingKeys() bool { return len(c.Verifier.Keys) > 0 }

// LoadVerifier reads every configured key into a Groth16 verifier.
func (c *Config) LoadVerifier() (*verifier.Groth16Verifier, error) {
	v := verifier.NewGroth16Verifier()
	for _, k := range c.Verifier.Keys {
		circuit, err := verifier.ParseCircuit(k.Circuit)
		if err != nil {
			return nil, err
		}
		vk, err := readKeyFile(k.Path)
		if err != nil {
			return nil, fmt.Errorf("error loading %s key for batch size %d: %w", k.Circuit, k.BatchSize, err)
		}
		if err := v.Register(circuit, k.BatchSize, vk); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func readKeyFile(path string) (*verifier.VerifyingKey, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return verifier.ReadVerifyingKey(f)
}
