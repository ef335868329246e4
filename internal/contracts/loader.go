package contracts

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Set is an in-memory Source keyed by contract name.
type Set map[string]*Artifact

// Artifact returns the artifact named name.
func (s Set) Artifact(name string) (*Artifact, error) {
	a, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", name)
	}
	return a, nil
}

// Require fails listing every name without an artifact.
func (s Set) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := s[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing artifacts: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadDir reads every hardhat artifact below dir. Debug files and JSON
// documents that are not contract artifacts (build info) are skipped.
func LoadDir(dir string) (Set, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(paths)

	var (
		mu  sync.Mutex
		set = make(Set)
		g   errgroup.Group
	)
	g.SetLimit(8)
	for _, path := range paths {
		g.Go(func() error {
			a, err := readArtifact(path)
			if err != nil || a == nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := set[a.ContractName]; dup && prev.CodeHash() != a.CodeHash() {
				return fmt.Errorf("artifact %s defined twice with different bytecode", a.ContractName)
			}
			set[a.ContractName] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var probe struct {
		ContractName string          `json:"contractName"`
		Bytecode     json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ContractName == "" || probe.Bytecode == nil {
		return nil, nil
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &a, nil
}
