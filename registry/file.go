package registry

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// fileDescriptor is the TOML representation of a Descriptor. Address and
// version are strings in the file and validated during load.
type fileDescriptor struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Address string `toml:"address"`
	Version string `toml:"version"`
}

type registryFile struct {
	Validators []fileDescriptor `toml:"validator"`
}

// LoadFile reads a validator module registry from a TOML file. The file
// holds one [[validator]] table per module:
//
//	[[validator]]
//	id      = "remote-validator"
//	name    = "RemoteValidator"
//	address = "0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815"
//	version = "1.0.0"
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}

	var f registryFile
	if err = toml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry file %s: %w", path, err)
	}

	descriptors := make([]Descriptor, 0, len(f.Validators))
	for _, fd := range f.Validators {
		if !common.IsHexAddress(fd.Address) {
			return nil, fmt.Errorf("descriptor %q: invalid address %q", fd.ID, fd.Address)
		}

		version, err := semver.NewVersion(fd.Version)
		if err != nil {
			return nil, fmt.Errorf("descriptor %q: invalid version %q: %w", fd.ID, fd.Version, err)
		}

		descriptors = append(descriptors, Descriptor{
			ID:      fd.ID,
			Name:    fd.Name,
			Address: common.HexToAddress(fd.Address),
			Version: version,
		})
	}

	return New(descriptors...)
}
