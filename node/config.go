package node

import (
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
	"quantumcoin.dev/node/node/store"
)

const envPrefix = "QC"

type MinerConfig struct {
	Workers       int `mapstructure:"workers" json:"workers"`
	MaxTxPerBlock int `mapstructure:"max_tx_per_block" json:"max_tx_per_block"`
	// CoinbasePubkey is the hex Dilithium2 public key block rewards pay to.
	CoinbasePubkey string `mapstructure:"coinbase_pubkey" json:"coinbase_pubkey"`
}

type MempoolConfig struct {
	MaxTxs          int           `mapstructure:"max_txs" json:"max_txs"`
	RejectCacheSize int           `mapstructure:"reject_cache_size" json:"reject_cache_size"`
	RejectCacheTTL  time.Duration `mapstructure:"reject_cache_ttl" json:"reject_cache_ttl"`
}

type Config struct {
	Network      string        `mapstructure:"network" json:"network"`
	DataDir      string        `mapstructure:"data_dir" json:"data_dir"`
	ChainSpec    string        `mapstructure:"chain_spec" json:"chain_spec"`
	DBBackend    string        `mapstructure:"db_backend" json:"db_backend"`
	LogLevel     string        `mapstructure:"log_level" json:"log_level"`
	MetricsAddr  string        `mapstructure:"metrics_addr" json:"metrics_addr"`
	SigCacheSize int           `mapstructure:"sig_cache_size" json:"sig_cache_size"`
	Miner        MinerConfig   `mapstructure:"miner" json:"miner"`
	Mempool      MempoolConfig `mapstructure:"mempool" json:"mempool"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".quantumcoin"
	}
	return filepath.Join(home, ".quantumcoin")
}

func DefaultConfig() Config {
	return Config{
		Network:      "devnet",
		DataDir:      DefaultDataDir(),
		DBBackend:    store.BackendBolt,
		LogLevel:     "info",
		MetricsAddr:  "127.0.0.1:9464",
		SigCacheSize: 10000,
		Miner: MinerConfig{
			Workers:       2,
			MaxTxPerBlock: 1000,
		},
		Mempool: MempoolConfig{
			MaxTxs:          5000,
			RejectCacheSize: 1000,
			RejectCacheTTL:  10 * time.Minute,
		},
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	switch cfg.DBBackend {
	case store.BackendBolt, store.BackendLevelDB:
	default:
		return errors.Errorf("invalid db_backend %q", cfg.DBBackend)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return errors.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return errors.Wrap(err, "invalid metrics_addr")
		}
	}
	if cfg.SigCacheSize <= 0 {
		return errors.New("sig_cache_size must be > 0")
	}
	if cfg.Miner.Workers <= 0 || cfg.Miner.Workers > 256 {
		return errors.New("miner.workers must be in [1, 256]")
	}
	if cfg.Miner.MaxTxPerBlock < 0 {
		return errors.New("miner.max_tx_per_block must be >= 0")
	}
	if cfg.Miner.CoinbasePubkey != "" {
		if _, err := cfg.Miner.Pubkey(); err != nil {
			return err
		}
	}
	if cfg.Mempool.MaxTxs <= 0 {
		return errors.New("mempool.max_txs must be > 0")
	}
	if cfg.Mempool.RejectCacheSize <= 0 {
		return errors.New("mempool.reject_cache_size must be > 0")
	}
	if cfg.Mempool.RejectCacheTTL < 0 {
		return errors.New("mempool.reject_cache_ttl must be >= 0")
	}
	return nil
}

// Pubkey decodes the configured coinbase key.
func (m MinerConfig) Pubkey() (crypto.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(m.CoinbasePubkey))
	if err != nil {
		return nil, errors.Wrap(err, "miner.coinbase_pubkey")
	}
	if len(raw) != crypto.PublicKeySize {
		return nil, errors.Errorf("miner.coinbase_pubkey: %d bytes, want %d", len(raw), crypto.PublicKeySize)
	}
	return crypto.PublicKey(raw), nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

// LoadConfig reads the node config file at path (any format viper knows,
// usually TOML) layered over DefaultConfig and QC_* environment variables.
// An empty path uses defaults and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BuiltinChainSpec returns the compiled-in parameters for a network name.
func BuiltinChainSpec(network string) (*consensus.ChainSpec, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "devnet":
		return consensus.DevnetChainSpec(), nil
	case "mainnet", consensus.DefaultChainSpec().Network.Name:
		return consensus.DefaultChainSpec(), nil
	default:
		return nil, errors.Errorf("no built-in chainspec for network %q", network)
	}
}

// LoadChainSpec reads a TOML chainspec. Keys the file omits keep the
// mainnet defaults; the result is validated before it is returned.
func LoadChainSpec(path string) (*consensus.ChainSpec, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := setDefaults(v, consensus.DefaultChainSpec()); err != nil {
		return nil, err
	}
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "read chainspec")
	}
	if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
		return nil, errors.Wrapf(err, "parse chainspec %s", path)
	}
	spec := new(consensus.ChainSpec)
	if err := v.Unmarshal(spec); err != nil {
		return nil, errors.Wrap(err, "decode chainspec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// ResolveChainSpec picks the chainspec file when one is configured and
// the built-in parameters for the network otherwise.
func ResolveChainSpec(cfg Config) (*consensus.ChainSpec, error) {
	if cfg.ChainSpec != "" {
		return LoadChainSpec(cfg.ChainSpec)
	}
	return BuiltinChainSpec(cfg.Network)
}

// setDefaults registers every leaf of def (through its json tags, which
// match the mapstructure tags) so that env overrides and partial files
// resolve against complete defaults.
func setDefaults(v *viper.Viper, def any) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(def)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &tree); err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}
