// Package config loads the batched tree configuration: built in defaults,
// then an optional TOML file, then BATCHEDTREE_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/go-playground/validator"
)

//go:embed default.toml
var DefaultValues string

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendPebble  = "pebble"
	BackendAzblob  = "azblob"
	BackendAzurite = "azurite"
)

type Config struct {
	LogLevel    string           `toml:"log_level" env:"BATCHEDTREE_LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR TEST NOOP"`
	Tree        TreeConfig       `toml:"tree"`
	OutputQueue QueueConfig      `toml:"output_queue"`
	Store       StoreConfig      `toml:"store"`
	Verifier    VerifierConfig   `toml:"verifier"`
	Checkpoint  CheckpointConfig `toml:"checkpoint"`
}

type TreeConfig struct {
	Height              uint64 `toml:"height" validate:"min=1,max=40"`
	RootHistoryCapacity uint64 `toml:"root_history_capacity" validate:"min=1,max=65536"`
	NumBatches          uint64 `toml:"num_batches" validate:"min=2,max=1024"`
	BatchSize           uint64 `toml:"batch_size" validate:"min=1"`
	BloomFilterCapacity uint64 `toml:"bloom_filter_capacity" validate:"min=8"`
	NumIters            uint64 `toml:"num_iters" validate:"min=1,max=64"`
	Hasher              string `toml:"hasher" env:"BATCHEDTREE_HASHER" validate:"oneof=poseidon keccak"`
}

type QueueConfig struct {
	NumBatches uint64 `toml:"num_batches" validate:"min=2,max=1024"`
	BatchSize  uint64 `toml:"batch_size" validate:"min=1"`
}

type StoreConfig struct {
	Backend string `toml:"backend" env:"BATCHEDTREE_STORE_BACKEND" validate:"oneof=memory leveldb pebble azblob azurite"`
	// Path is the database directory of the leveldb and pebble backends.
	Path string `toml:"path" env:"BATCHEDTREE_STORE_PATH"`
	// Container and Prefix place account blobs for the azblob and azurite
	// backends.
	Container string `toml:"container" env:"BATCHEDTREE_STORE_CONTAINER"`
	Prefix    string `toml:"prefix" env:"BATCHEDTREE_STORE_PREFIX"`
	// AccountName, ResourceGroup and Subscription locate the storage account
	// of the azblob backend. The azurite backend talks to the local emulator
	// configured by the AZURITE_* environment instead.
	AccountName   string `toml:"account_name" env:"BATCHEDTREE_STORE_ACCOUNT_NAME"`
	ResourceGroup string `toml:"resource_group" env:"BATCHEDTREE_STORE_RESOURCE_GROUP"`
	Subscription  string `toml:"subscription" env:"BATCHEDTREE_STORE_SUBSCRIPTION"`
}

type VerifierConfig struct {
	Keys []VerifyingKeyConfig `toml:"keys" validate:"dive"`
}

// VerifyingKeyConfig names the key file for one circuit and batch size.
type VerifyingKeyConfig struct {
	Circuit   string `toml:"circuit" validate:"oneof=append nullify address-append"`
	BatchSize uint64 `toml:"batch_size" validate:"min=1"`
	Path      string `toml:"path" validate:"required"`
}

type CheckpointConfig struct {
	Issuer  string `toml:"issuer" env:"BATCHEDTREE_CHECKPOINT_ISSUER"`
	Subject string `toml:"subject"`
	// KeyPath is a PEM encoded EC private key.
	KeyPath string `toml:"key_path" env:"BATCHEDTREE_CHECKPOINT_KEY_PATH"`
	KeyID   string `toml:"key_id"`
}

func loadDefault(defaultValues string, cfg interface{}) error {
	if _, err := toml.Decode(defaultValues, cfg); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if _, err := toml.Decode(string(bs), cfg); err != nil {
		return err
	}
	return nil
}

func loadEnv(cfg interface{}) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	return nil
}

// Load builds the configuration from the defaults, the file at filePath if
// it is not empty, and the environment, then validates it.
func Load(filePath string) (*Config, error) {
	var cfg Config
	if err := loadDefault(DefaultValues, &cfg); err != nil {
		return nil, fmt.Errorf("error loading default configuration: %w", err)
	}
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("error loading configuration file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(treeStructLevel, TreeConfig{})
	v.RegisterStructValidation(storeStructLevel, StoreConfig{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// The bloom filter holds whole bytes and at least eight bits per value.
func treeStructLevel(sl validator.StructLevel) {
	t := sl.Current().Interface().(TreeConfig)
	if t.BloomFilterCapacity%8 != 0 {
		sl.ReportError(t.BloomFilterCapacity, "BloomFilterCapacity", "bloom_filter_capacity", "multiple8", "")
	}
	if t.BloomFilterCapacity < t.BatchSize*8 {
		sl.ReportError(t.BloomFilterCapacity, "BloomFilterCapacity", "bloom_filter_capacity", "bitspervalue", "")
	}
}

func storeStructLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)
	switch s.Backend {
	case BackendLevelDB, BackendPebble:
		if s.Path == "" {
			sl.ReportError(s.Path, "Path", "path", "required", "")
		}
	case BackendAzblob:
		if s.AccountName == "" {
			sl.ReportError(s.AccountName, "AccountName", "account_name", "required", "")
		}
		if s.ResourceGroup == "" {
			sl.ReportError(s.ResourceGroup, "ResourceGroup", "resource_group", "required", "")
		}
		if s.Subscription == "" {
			sl.ReportError(s.Subscription, "Subscription", "subscription", "required", "")
		}
		fallthrough
	case BackendAzurite:
		if s.Container == "" {
			sl.ReportError(s.Container, "Container", "container", "required", "")
		}
	}
}

// ToTreeParams maps the tree section onto tree parameters. Type and ids are
// left for the caller.
func (c *Config) ToTreeParams() (batched.TreeParams, error) {
	kind, err := hashchain.ParseKind(c.Tree.Hasher)
	if err != nil {
		return batched.TreeParams{}, err
	}
	return batched.TreeParams{
		Height:              c.Tree.Height,
		RootHistoryCapacity: c.Tree.RootHistoryCapacity,
		Queue: batched.QueueParams{
			NumBatches:          c.Tree.NumBatches,
			BatchSize:           c.Tree.BatchSize,
			BloomFilterCapacity: c.Tree.BloomFilterCapacity,
			NumIters:            c.Tree.NumIters,
			Hasher:              kind,
		},
	}, nil
}

// ToQueueParams maps the output queue section onto queue parameters. The
// queue shares the tree's hasher.
func (c *Config) ToQueueParams() (batched.QueueParams, error) {
	kind, err := hashchain.ParseKind(c.Tree.Hasher)
	if err != nil {
		return batched.QueueParams{}, err
	}
	return batched.QueueParams{
		QueueType:  batched.QueueTypeOutput,
		NumBatches: c.OutputQueue.NumBatches,
		BatchSize:  c.OutputQueue.BatchSize,
		Hasher:     kind,
	}, nil
}
