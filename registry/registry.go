// Package registry holds the static descriptors of the validator modules
// installed on the managed smart accounts. Descriptors are read-only for the
// lifetime of the process and are consulted only to resolve signing-domain
// overrides.
package registry

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
)

// RemoteValidatorID is the registry id of the remote validator module. It is
// the only module the domain resolver compares nonce keys against.
const RemoteValidatorID = "remote-validator"

// Nonce key layout bytes. The key encodes how the account routes validation:
// a mode byte, a module type byte, the 20-byte module address, and two
// reserved zero bytes.
const (
	keyModeDefault   byte = 0x00
	keyTypeValidator byte = 0x01
)

// Descriptor describes one validator module installed on the managed
// accounts.
type Descriptor struct {
	// ID is the registry identifier, unique within a Registry.
	ID string
	// Name is the human-readable module name.
	Name string
	// Address is the on-chain address of the module contract.
	Address common.Address
	// Version is the deployed module version.
	Version *semver.Version
}

// NonceKey derives the 24-byte nonce key that routes an operation's
// validation to this module. An operation whose nonce carries this key is
// validated by the module instead of the account's root path.
func (d Descriptor) NonceKey() [24]byte {
	var key [24]byte
	key[0] = keyModeDefault
	key[1] = keyTypeValidator
	copy(key[2:22], d.Address.Bytes())

	return key
}

// Registry is an immutable, id-indexed set of validator module descriptors.
type Registry struct {
	descriptors []Descriptor
	byID        map[string]Descriptor
}

// New constructs a Registry from the given descriptors. Descriptor ids must
// be non-empty and unique.
func New(descriptors ...Descriptor) (*Registry, error) {
	byID := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, errors.New("descriptor id is required")
		}
		if _, ok := byID[d.ID]; ok {
			return nil, fmt.Errorf("duplicate descriptor id %q", d.ID)
		}

		byID[d.ID] = d
	}

	return &Registry{descriptors: descriptors, byID: byID}, nil
}

// Get returns the descriptor registered under id. The second return reports
// whether the id exists; callers must check it rather than rely on a zero
// descriptor.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]

	return d, ok
}

// All returns the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)

	return out
}

// Default returns the registry of modules installed on the currently managed
// accounts. Several modules are registered, but only the remote validator
// participates in domain override resolution.
func Default() *Registry {
	reg, err := New(
		Descriptor{
			ID:      RemoteValidatorID,
			Name:    "RemoteValidator",
			Address: common.HexToAddress("0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815"),
			Version: semver.MustParse("1.0.0"),
		},
		Descriptor{
			ID:      "session-key-validator",
			Name:    "SessionKeyValidator",
			Address: common.HexToAddress("0x41c8f39463a868d3a88af18fc713a8e7e276b6a0"),
			Version: semver.MustParse("1.2.1"),
		},
		Descriptor{
			ID:      "recovery-validator",
			Name:    "RecoveryValidator",
			Address: common.HexToAddress("0xd53ff2c1a3b6e089b44f5e8817b16a9f09a4c6b7"),
			Version: semver.MustParse("0.9.0"),
		},
	)
	if err != nil {
		panic(err)
	}

	return reg
}
