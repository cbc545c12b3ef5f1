// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"sort"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"gopkg.in/yaml.v3"
)

// CheckLevel selects how Decrypt treats the signer of a container.
type CheckLevel int

const (
	// AnyIdentity accepts any signer whose signature verifies.
	AnyIdentity CheckLevel = iota
	// KnownOnly accepts only signers present in the trust store.
	KnownOnly
)

func (l CheckLevel) String() string {
	switch l {
	case AnyIdentity:
		return "any"
	case KnownOnly:
		return "known-only"
	default:
		return fmt.Sprintf("CheckLevel(%d)", int(l))
	}
}

// TrustedIdentity is one trust store entry.
type TrustedIdentity struct {
	// Name is the identity name the signer is known by.
	Name string `yaml:"name"`
	// KeyHash is the hex SHA-256 hash of the signer's DER public key.
	KeyHash string `yaml:"key_hash"`
}

// TrustStore is the set of signers a recipient trusts. It is stored
// as YAML:
//
//	identities:
//	  - name: PrusaSlicer
//	    key_hash: 5f2b...
type TrustStore struct {
	Identities []TrustedIdentity `yaml:"identities"`
}

// ReadTrustStore decodes a YAML trust store.
func ReadTrustStore(r io.Reader) (*TrustStore, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s := new(TrustStore)
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.E(errors.Invalid, "decode trust store", err)
	}
	for i, id := range s.Identities {
		h, err := hex.DecodeString(id.KeyHash)
		if err != nil || len(h) != HashSize {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("trust store entry %d (%q): bad key hash %q", i, id.Name, id.KeyHash))
		}
	}
	return s, nil
}

// LoadTrustStore reads a trust store from path. A missing file yields
// an empty store.
func LoadTrustStore(ctx context.Context, path string) (*TrustStore, error) {
	data, err := file.ReadFile(ctx, path)
	if errors.Is(errors.NotExist, err) {
		return new(TrustStore), nil
	}
	if err != nil {
		return nil, err
	}
	return ReadTrustStore(bytes.NewReader(data))
}

// Write encodes the store as YAML, sorted by name.
func (s *TrustStore) Write(w io.Writer) error {
	sort.SliceStable(s.Identities, func(i, j int) bool {
		return s.Identities[i].Name < s.Identities[j].Name
	})
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// Save atomically replaces the trust store at path.
func (s *TrustStore) Save(ctx context.Context, path string) error {
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return err
	}
	return file.WriteFile(ctx, path, buf.Bytes())
}

// Add trusts pub under name, replacing any entry for the same key.
func (s *TrustStore) Add(name string, pub *rsa.PublicKey) error {
	h, err := KeyHash(pub)
	if err != nil {
		return err
	}
	s.add(name, h)
	return nil
}

func (s *TrustStore) add(name string, keyHash [HashSize]byte) {
	hexHash := hex.EncodeToString(keyHash[:])
	for i := range s.Identities {
		if s.Identities[i].KeyHash == hexHash {
			s.Identities[i].Name = name
			return
		}
	}
	s.Identities = append(s.Identities, TrustedIdentity{Name: name, KeyHash: hexHash})
}

// Lookup returns the name under which the key with keyHash is trusted.
func (s *TrustStore) Lookup(keyHash [HashSize]byte) (string, bool) {
	if s == nil {
		return "", false
	}
	hexHash := hex.EncodeToString(keyHash[:])
	for _, id := range s.Identities {
		if id.KeyHash == hexHash {
			return id.Name, true
		}
	}
	return "", false
}

// checkTrust applies the decrypt options' signer pin and check level
// to a verified identity.
func checkTrust(pos position, id *Identity, opts DecryptOptions) error {
	keyHash := id.KeyHash()
	if opts.SignerKey != nil {
		want, err := KeyHash(opts.SignerKey)
		if err != nil {
			return err
		}
		if want != keyHash {
			return pos.fail(bgcode.UntrustedIdentity, fmt.Sprintf("identity %q is not the expected signer", id.Name), nil)
		}
	}
	if opts.CheckLevel == KnownOnly {
		if _, ok := opts.TrustStore.Lookup(keyHash); !ok {
			return pos.fail(bgcode.UntrustedIdentity, fmt.Sprintf("identity %q (key %x) is not in the trust store", id.Name, keyHash[:8]), nil)
		}
	}
	return nil
}
