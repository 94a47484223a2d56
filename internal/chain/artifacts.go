package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrArtifactNotFound is returned when a requested contract has no artifact on disk.
var ErrArtifactNotFound = errors.New("contract artifact not found")

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode,omitempty"`
	ContractName     string          `json:"contractName,omitempty"`

	// Path is the file the artifact was loaded from.
	Path string `json:"-"`

	once   sync.Once
	parsed abi.ABI
	err    error
}

// Bytecode contains the contract bytecode.
// It handles both formats:
// - Simple string: "0x608060..." (Hardhat)
// - Object with "object" field: {"object": "0x608060..."} (Foundry)
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// GetBytecodeBytes decodes the creation bytecode.
func (a *ContractArtifact) GetBytecodeBytes() ([]byte, error) {
	h := strings.TrimSpace(a.Bytecode.hex)
	if h == "" || h == "0x" {
		return nil, fmt.Errorf("%s has no creation bytecode (abstract contract or interface?)", a.name())
	}
	if strings.Contains(h, "__") {
		return nil, fmt.Errorf("%s bytecode has unlinked library references", a.name())
	}
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	code, err := hexutil.Decode(h)
	if err != nil {
		return nil, fmt.Errorf("decode %s bytecode: %w", a.name(), err)
	}
	return code, nil
}

// ParsedABI parses the artifact ABI once.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	a.once.Do(func() {
		a.parsed, a.err = abi.JSON(bytes.NewReader(a.ABI))
		if a.err != nil {
			a.err = fmt.Errorf("parse %s ABI: %w", a.name(), a.err)
		}
	})
	return a.parsed, a.err
}

// ConstructorInput ABI-encodes constructor arguments, converting Go values to the
// declared input types first.
func (a *ContractArtifact) ConstructorInput(args ...any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	coerced, err := CoerceArgs(parsed.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.name(), err)
	}
	input, err := parsed.Pack("", coerced...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor args: %w", a.name(), err)
	}
	return input, nil
}

// CreationData returns the bytecode with the encoded constructor arguments appended.
func (a *ContractArtifact) CreationData(args ...any) ([]byte, error) {
	code, err := a.GetBytecodeBytes()
	if err != nil {
		return nil, err
	}
	input, err := a.ConstructorInput(args...)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(code)+len(input))
	data = append(data, code...)
	return append(data, input...), nil
}

func (a *ContractArtifact) name() string {
	if a.ContractName != "" {
		return a.ContractName
	}
	return "contract"
}

// ParseArtifact decodes a Hardhat or Foundry artifact file.
func ParseArtifact(data []byte) (*ContractArtifact, error) {
	var artifact ContractArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi")
	}
	return &artifact, nil
}

// Artifacts is a set of contract artifacts keyed by contract name.
type Artifacts struct {
	contracts map[string]*ContractArtifact
}

// NewArtifacts builds a set from already parsed artifacts.
func NewArtifacts(contracts map[string]*ContractArtifact) *Artifacts {
	for name, a := range contracts {
		if a.ContractName == "" {
			a.ContractName = name
		}
	}
	return &Artifacts{contracts: contracts}
}

// Get returns the artifact for a contract name.
func (s *Artifacts) Get(name string) (*ContractArtifact, bool) {
	a, ok := s.contracts[name]
	return a, ok
}

// Names returns the loaded contract names, sorted.
func (s *Artifacts) Names() []string {
	names := make([]string, 0, len(s.contracts))
	for n := range s.contracts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadArtifacts walks a Hardhat (artifacts/) or Foundry (out/) tree and loads
// <Name>.json for every requested name. When the same name appears more than once,
// the file inside <Name>.sol/ wins.
func LoadArtifacts(dir string, names ...string) (*Artifacts, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	found := make(map[string]string, len(names))

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		if !strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".dbg.json") {
			return nil
		}
		name := strings.TrimSuffix(base, ".json")
		if !wanted[name] {
			return nil
		}
		if prev, ok := found[name]; ok && filepath.Base(filepath.Dir(prev)) == name+".sol" {
			return nil
		}
		found[name] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk artifacts dir: %w", err)
	}

	contracts := make(map[string]*ContractArtifact, len(names))
	var missing []string
	for _, n := range names {
		path, ok := found[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", n, err)
		}
		artifact, err := ParseArtifact(data)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		artifact.ContractName = n
		artifact.Path = path
		contracts[n] = artifact
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w in %s: %s", ErrArtifactNotFound, dir, strings.Join(missing, ", "))
	}

	return &Artifacts{contracts: contracts}, nil
}
