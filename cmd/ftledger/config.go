package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/neo-go/pkg/core/storage/dbconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the ftledger configuration file structure.
type Config struct {
	Logger  LoggerConfig             `yaml:"Logger"`
	Storage dbconfig.DBConfiguration `yaml:"Storage"`
	Ledger  LedgerConfig             `yaml:"Ledger"`
}

// LoggerConfig configures the application log.
type LoggerConfig struct {
	Level    string `yaml:"Level"`
	Encoding string `yaml:"Encoding"`
}

// LedgerConfig describes the ledger host and its genesis.
type LedgerConfig struct {
	// Account of the token contract.
	Contract string `yaml:"Contract"`

	StorageBytePrice string        `yaml:"StorageBytePrice"`
	CalloutTimeout   time.Duration `yaml:"CalloutTimeout"`
	MinCalloutGas    uint64        `yaml:"MinCalloutGas"`

	// Genesis parameters applied by the init command.
	Owner        string            `yaml:"Owner"`
	TotalSupply  string            `yaml:"TotalSupply"`
	SessionVault string            `yaml:"SessionVault"`
	Funds        map[string]string `yaml:"Funds"`

	// Receivers maps accounts of the built-in transfer receivers to the
	// amount they report unused.
	Receivers map[string]string `yaml:"Receivers"`
}

const (
	defaultContract = "token"
	defaultDataPath = "./ftledger.db"
)

func defaultConfig() Config {
	return Config{
		Logger: LoggerConfig{Level: "info", Encoding: "console"},
		Storage: dbconfig.DBConfiguration{
			Type:           dbconfig.LevelDB,
			LevelDBOptions: dbconfig.LevelDBOptions{DataDirectoryPath: defaultDataPath},
		},
		Ledger: LedgerConfig{
			Contract:       defaultContract,
			CalloutTimeout: host.DefaultCalloutTimeout,
			MinCalloutGas:  host.DefaultMinCalloutGas,
		},
	}
}

// loadConfig reads YAML configuration from the file at path. Missing fields
// are set to defaults. Empty path means the default configuration.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Ledger.Contract == "" {
		return errors.New("empty ledger contract account")
	}
	if c.Ledger.CalloutTimeout < 0 {
		return fmt.Errorf("negative callout timeout %s", c.Ledger.CalloutTimeout)
	}

	if _, err := optAmount(c.Ledger.StorageBytePrice); err != nil {
		return fmt.Errorf("storage byte price: %w", err)
	}
	if _, err := optAmount(c.Ledger.TotalSupply); err != nil {
		return fmt.Errorf("total supply: %w", err)
	}
	if _, err := c.funds(); err != nil {
		return err
	}
	if _, err := c.receivers(); err != nil {
		return err
	}

	if _, err := c.Logger.level(); err != nil {
		return err
	}
	switch c.Logger.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log encoding '%s'", c.Logger.Encoding)
	}

	return nil
}

// optAmount parses the amount, empty string means nil.
func optAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return common.ParseU128(s)
}

func (c Config) funds() (map[string]*uint256.Int, error) {
	res := make(map[string]*uint256.Int, len(c.Ledger.Funds))
	for acc, s := range c.Ledger.Funds {
		v, err := common.ParseU128(s)
		if err != nil {
			return nil, fmt.Errorf("funds of %s: %w", acc, err)
		}
		res[acc] = v
	}
	return res, nil
}

func (c Config) receivers() (map[string]common.U128, error) {
	res := make(map[string]common.U128, len(c.Ledger.Receivers))
	for acc, s := range c.Ledger.Receivers {
		if acc == c.Ledger.Contract {
			return nil, fmt.Errorf("receiver %s conflicts with the ledger contract", acc)
		}

		v, err := optAmount(s)
		if err != nil {
			return nil, fmt.Errorf("receiver %s: %w", acc, err)
		}
		if v == nil {
			v = new(uint256.Int)
		}
		res[acc] = common.NewU128(v)
	}
	return res, nil
}

func (c Config) hostOptions(log *zap.Logger) host.Options {
	price, _ := optAmount(c.Ledger.StorageBytePrice)
	return host.Options{
		Logger:           log,
		StorageBytePrice: price,
		CalloutTimeout:   c.Ledger.CalloutTimeout,
		MinCalloutGas:    c.Ledger.MinCalloutGas,
	}
}

func (l LoggerConfig) level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

func (l LoggerConfig) build() (*zap.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}

	cc := zap.NewProductionConfig()
	cc.Level = zap.NewAtomicLevelAt(lvl)
	cc.Encoding = "console"
	if l.Encoding != "" {
		cc.Encoding = l.Encoding
	}
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.OutputPaths = []string{"stderr"}
	cc.Sampling = nil

	return cc.Build()
}

// sortedAccounts returns map keys in ascending order.
func sortedAccounts[V any](m map[string]V) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
