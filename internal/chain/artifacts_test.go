package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	registryABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[` +
		`{"name":"_minStake","type":"uint256"},` +
		`{"name":"_feeRecipient","type":"address"},` +
		`{"name":"_feePercent","type":"uint16"}]}]`
	storeABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[` +
		`{"name":"_userRegistry","type":"address"},` +
		`{"name":"_providerRegistry","type":"address"},` +
		`{"name":"_oracle","type":"address"}]}]`

	// Init code returning a single STOP byte as runtime code.
	minimalInitCode = "0x6001600c60003960016000f300"
	// Init code that reverts with empty data.
	revertInitCode = "0x60006000fd"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBytecode_UnmarshalJSON(t *testing.T) {
	t.Run("hardhat string", func(t *testing.T) {
		a, err := ParseArtifact([]byte(`{"abi":[],"bytecode":"0x6001"}`))
		require.NoError(t, err)
		assert.Equal(t, "0x6001", a.Bytecode.String())
	})

	t.Run("foundry object", func(t *testing.T) {
		a, err := ParseArtifact([]byte(`{"abi":[],"bytecode":{"object":"0x6002","linkReferences":{}}}`))
		require.NoError(t, err)
		code, err := a.GetBytecodeBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x02}, code)
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		_, err := ParseArtifact([]byte(`{"abi":[],"bytecode":42}`))
		assert.Error(t, err)
	})

	t.Run("requires abi", func(t *testing.T) {
		_, err := ParseArtifact([]byte(`{"bytecode":"0x00"}`))
		assert.ErrorContains(t, err, "no abi")
	})
}

func TestContractArtifact_GetBytecodeBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytecode string
		contains string
	}{
		{"empty", "0x", "no creation bytecode"},
		{"unlinked library", "0x6001__$abcdef$__", "unlinked"},
		{"bad hex", "0xzz", "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &ContractArtifact{ContractName: "UserRegistry", Bytecode: Bytecode{hex: tt.bytecode}}
			_, err := a.GetBytecodeBytes()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "UserRegistry")
		})
	}

	t.Run("accepts missing 0x prefix", func(t *testing.T) {
		a := &ContractArtifact{Bytecode: Bytecode{hex: "6001"}}
		code, err := a.GetBytecodeBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x01}, code)
	})
}

func TestContractArtifact_CreationData(t *testing.T) {
	a := &ContractArtifact{
		ContractName: "PreConfCommitmentStore",
		ABI:          []byte(storeABI),
		Bytecode:     Bytecode{hex: minimalInitCode},
	}

	data, err := a.CreationData(
		"0xA0000000000000000000000000000000000000A0",
		"0xB0000000000000000000000000000000000000B0",
		"0x388C818CA8B9251b393131C08a736A67ccB19297",
	)
	require.NoError(t, err)

	code, err := a.GetBytecodeBytes()
	require.NoError(t, err)
	require.Len(t, data, len(code)+3*32)
	assert.Equal(t, code, data[:len(code)])
	assert.Equal(t, byte(0xA0), data[len(code)+12])
	assert.Equal(t, byte(0xB0), data[len(code)+32+12])

	_, err = a.CreationData("0xA0000000000000000000000000000000000000A0")
	assert.ErrorContains(t, err, "expected 3 arguments, got 1")
}

func TestLoadArtifacts(t *testing.T) {
	t.Run("hardhat layout skips debug files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "contracts", "UserRegistry.sol", "UserRegistry.json"),
			`{"contractName":"UserRegistry","abi":`+registryABI+`,"bytecode":"`+minimalInitCode+`"}`)
		writeFile(t, filepath.Join(dir, "contracts", "UserRegistry.sol", "UserRegistry.dbg.json"),
			`{"_format":"hh-sol-dbg-1"}`)
		writeFile(t, filepath.Join(dir, "build-info", "UserRegistry.json"), `not json`)

		set, err := LoadArtifacts(dir, "UserRegistry")
		require.NoError(t, err)

		a, ok := set.Get("UserRegistry")
		require.True(t, ok)
		assert.Equal(t, minimalInitCode, a.Bytecode.String())
		assert.Equal(t, []string{"UserRegistry"}, set.Names())
	})

	t.Run("foundry layout", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "ProviderRegistry.sol", "ProviderRegistry.json"),
			`{"abi":`+registryABI+`,"bytecode":{"object":"`+minimalInitCode+`"}}`)

		set, err := LoadArtifacts(dir, "ProviderRegistry")
		require.NoError(t, err)

		a, _ := set.Get("ProviderRegistry")
		assert.Equal(t, "ProviderRegistry", a.ContractName)
		_, err = a.ParsedABI()
		assert.NoError(t, err)
	})

	t.Run("prefers the file in the matching .sol directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a", "UserRegistry.json"), `{"abi":[],"bytecode":"0x01"}`)
		writeFile(t, filepath.Join(dir, "b", "UserRegistry.sol", "UserRegistry.json"), `{"abi":[],"bytecode":"0x02"}`)
		writeFile(t, filepath.Join(dir, "c", "UserRegistry.json"), `{"abi":[],"bytecode":"0x03"}`)

		set, err := LoadArtifacts(dir, "UserRegistry")
		require.NoError(t, err)
		a, _ := set.Get("UserRegistry")
		assert.Equal(t, "0x02", a.Bytecode.String())
	})

	t.Run("reports every missing contract", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "UserRegistry.sol", "UserRegistry.json"), `{"abi":[],"bytecode":"0x01"}`)

		_, err := LoadArtifacts(dir, "UserRegistry", "ProviderRegistry", "PreConfCommitmentStore")
		require.ErrorIs(t, err, ErrArtifactNotFound)
		assert.Contains(t, err.Error(), "ProviderRegistry, PreConfCommitmentStore")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadArtifacts(filepath.Join(t.TempDir(), "nope"), "UserRegistry")
		assert.Error(t, err)
	})
}
