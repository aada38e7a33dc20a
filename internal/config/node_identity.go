package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// NodeIdentity is the machine-local identity file every node carries
// outside the layered YAML config: just enough to let a placement
// registry and a remote invocation engine address this node, with no
// viper indirection and no environment-variable override (a compromised
// or misconfigured node.toml is a deploy-time mistake to fix on disk, not
// a value to let ACTORCORE_ env vars quietly override in production).
type NodeIdentity struct {
	Name       string `toml:"name"`
	DataDir    string `toml:"data_dir"`
	ListenAddr string `toml:"listen_addr,omitempty"`
}

// LoadNodeIdentity parses a node.toml file at path.
func LoadNodeIdentity(path string) (NodeIdentity, error) {
	var id NodeIdentity
	if _, err := toml.DecodeFile(path, &id); err != nil {
		return NodeIdentity{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if id.Name == "" {
		return NodeIdentity{}, fmt.Errorf("config: %s: name is required", path)
	}
	return id, nil
}

// WriteNodeIdentity writes id to path as TOML, creating parent
// directories as needed.
func WriteNodeIdentity(path string, id NodeIdentity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(id)
}

// DefaultNodeIdentityPath is where a node looks for its own identity
// file, mirroring the teacher's own-directory-then-home search for
// config.yaml but with no upward directory walk — a node's identity is
// always local to its data directory, never inherited from a parent.
func DefaultNodeIdentityPath(dataDir string) string {
	return filepath.Join(dataDir, "node.toml")
}
