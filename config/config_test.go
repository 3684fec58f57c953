package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/forestrie/go-batchedmerkle/verifier/verifiertesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, uint64(26), cfg.Tree.Height)
	assert.Equal(t, BackendLevelDB, cfg.Store.Backend)
	assert.False(t, cfg.HasVerifyingKeys())

	tp, err := cfg.ToTreeParams()
	require.NoError(t, err)
	assert.Equal(t, hashchain.KindPoseidon, tp.Queue.Hasher)
	tp.TreeType = batched.TreeTypeState
	_, err = batched.TreeAccountSize(tp)
	require.NoError(t, err)

	qp, err := cfg.ToQueueParams()
	require.NoError(t, err)
	assert.Equal(t, batched.QueueTypeOutput, qp.QueueType)
	_, err = batched.QueueAccountSize(qp)
	require.NoError(t, err)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, "tree.toml", `
log_level = "DEBUG"

[tree]
height = 20
batch_size = 10
bloom_filter_capacity = 800
hasher = "keccak"

[store]
backend = "pebble"
path = "/var/lib/batchedtree"
`)
	t.Setenv("BATCHEDTREE_STORE_PATH", "/tmp/override")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, uint64(20), cfg.Tree.Height)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, uint64(2), cfg.Tree.NumBatches)
	assert.Equal(t, BackendPebble, cfg.Store.Backend)
	assert.Equal(t, "/tmp/override", cfg.Store.Path)

	tp, err := cfg.ToTreeParams()
	require.NoError(t, err)
	assert.Equal(t, hashchain.KindKeccak, tp.Queue.Hasher)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"height above 40", "[tree]\nheight = 41\n"},
		{"single batch", "[tree]\nnum_batches = 1\n"},
		{"unknown hasher", "[tree]\nhasher = \"sha256\"\n"},
		{"bloom not whole bytes", "[tree]\nbloom_filter_capacity = 200001\n"},
		{"bloom too small", "[tree]\nbatch_size = 500\nbloom_filter_capacity = 3992\n"},
		{"unknown backend", "[store]\nbackend = \"s3\"\n"},
		{"pebble without path", "[store]\nbackend = \"pebble\"\npath = \"\"\n"},
		{"azurite without container", "[store]\nbackend = \"azurite\"\ncontainer = \"\"\n"},
		{"azblob without account", "[store]\nbackend = \"azblob\"\nresource_group = \"rg\"\nsubscription = \"sub\"\n"},
		{"azblob without subscription", "[store]\nbackend = \"azblob\"\naccount_name = \"acct\"\nresource_group = \"rg\"\n"},
		{"azblob without container", "[store]\nbackend = \"azblob\"\ncontainer = \"\"\naccount_name = \"acct\"\nresource_group = \"rg\"\nsubscription = \"sub\"\n"},
		{"key with unknown circuit", "[[verifier.keys]]\ncircuit = \"fold\"\nbatch_size = 10\npath = \"k\"\n"},
		{"key without path", "[[verifier.keys]]\ncircuit = \"append\"\nbatch_size = 10\n"},
		{"not toml", "[tree\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.toml", tt.content))
			assert.Error(t, err)
		})
	}
}

// azurite needs only a container; azblob also needs the storage account.
func TestLoadAzureBackends(t *testing.T) {
	cfg, err := Load(writeFile(t, "azurite.toml", "[store]\nbackend = \"azurite\"\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendAzurite, cfg.Store.Backend)
	assert.Equal(t, "batchedtree", cfg.Store.Container)

	t.Setenv("BATCHEDTREE_STORE_SUBSCRIPTION", "sub-1")
	cfg, err = Load(writeFile(t, "azblob.toml", `
[store]
backend = "azblob"
account_name = "treesacct"
resource_group = "trees"
`))
	require.NoError(t, err)
	assert.Equal(t, BackendAzblob, cfg.Store.Backend)
	assert.Equal(t, "treesacct", cfg.Store.AccountName)
	assert.Equal(t, "sub-1", cfg.Store.Subscription)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadVerifier(t *testing.T) {
	key := verifiertesting.NewTrapdoorKey(t)
	data, err := key.VK.MarshalBinary()
	require.NoError(t, err)
	keyPath := writeFile(t, "append-10.vk", string(data))

	cfg, err := Load(writeFile(t, "tree.toml", `
[[verifier.keys]]
circuit = "append"
batch_size = 10
path = "`+keyPath+`"
`))
	require.NoError(t, err)
	require.True(t, cfg.HasVerifyingKeys())

	v, err := cfg.LoadVerifier()
	require.NoError(t, err)

	var pih [32]byte
	pih[31] = 7
	proof := key.Prove(t, pih)
	assert.NoError(t, v.Verify(verifier.CircuitBatchAppend, 10, pih, proof))
	assert.ErrorIs(t, v.Verify(verifier.CircuitBatchAppend, 20, pih, proof), verifier.ErrNoVerifyingKey)
}

func TestLoadVerifierMissingKeyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "tree.toml", `
[[verifier.keys]]
circuit = "nullify"
batch_size = 10
path = "/nonexistent/nullify.vk"
`))
	require.NoError(t, err)
	_, err = cfg.LoadVerifier()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
