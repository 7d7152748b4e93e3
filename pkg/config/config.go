package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/naoina/toml"
)

// DefaultFile is read when no path is passed on the command line.
const DefaultFile = ".env"

var (
	ErrMissingRPCURL    = errors.New("RPC_URL is not set")
	ErrMalformedKeyList = errors.New("malformed PRIVATE_KEYS")
	ErrMalformedAddress = errors.New("malformed address")
)

type (
	Config struct {
		RPCURL         string `toml:"rpc_url" env:"RPC_URL"`
		EventsURL      string `toml:"events_url" env:"EVENTS_URL"`
		AccountAddress string `toml:"account_address" env:"ACCOUNT_ADDRESS"`
		Mnemonic       string `toml:"hd_wallet_mnemonic" env:"HD_WALLET_MNEMONIC"`
		DerivationPath string `toml:"hd_wallet_path" env:"HD_WALLET_PATH" envDefault:"m/44'/60'/0'/0/0"`
		PrivateKeys    string `toml:"private_keys" env:"PRIVATE_KEYS"`

		Contracts Contracts `toml:"contracts"`
		Node      Node      `toml:"node"`

		ArtifactsDir        string   `toml:"artifacts_dir" env:"ARTIFACTS_DIR"`
		EventTimeout        Duration `toml:"event_timeout" env:"EVENT_TIMEOUT" envDefault:"0s"`
		EventPollInterval   Duration `toml:"event_poll_interval" env:"EVENT_POLL_INTERVAL" envDefault:"2s"`
		ReceiptPollInterval Duration `toml:"receipt_poll_interval" env:"RECEIPT_POLL_INTERVAL" envDefault:"1s"`
		Verbosity           int      `toml:"verbosity" env:"VERBOSITY" envDefault:"4"`
		Repeat              bool     `toml:"repeat" env:"REPEAT_MENU"`

		Influx Influx `toml:"influx"`
	}

	// Contracts holds the known deployment addresses. Each address accepts two
	// variable names; the CONTRACT_* form wins when both are set.
	Contracts struct {
		Link              string `toml:"link" env:"CONTRACT_LINK"`
		LinkAlias         string `toml:"-" env:"LINK_CONTRACT_ADDRESS"`
		Oracle            string `toml:"oracle" env:"CONTRACT_ORACLE"`
		OracleAlias       string `toml:"-" env:"ORACLE_CONTRACT_ADDRESS"`
		TestConsumer      string `toml:"oracle_test_consumer" env:"CONTRACT_ORACLE_TEST_CONSUMER"`
		TestConsumerAlias string `toml:"-" env:"ORACLE_TEST_CONSUMER_CONTRACT_ADDRESS"`
	}

	Node struct {
		Address string `toml:"address" env:"NODE_ADDRESS"`
		JobID   string `toml:"job_id" env:"NODE_JOB_ID"`
	}

	Influx struct {
		URL    string `toml:"url" env:"INFLUX_URL"`
		Token  string `toml:"token" env:"INFLUX_TOKEN"`
		Org    string `toml:"org" env:"INFLUX_ORG" envDefault:"directrequest"`
		Bucket string `toml:"bucket" env:"INFLUX_BUCKET" envDefault:"actions"`
	}
)

// Duration is a time.Duration written as "90s" or "1m30s" in both dotenv and
// TOML files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Load reads the configuration from file. A dotenv file is merged into the
// process environment first; a missing file leaves every value at its default.
// Files ending in .toml are decoded on top of the environment.
func Load(file string) (Config, error) {
	if file == "" {
		file = DefaultFile
	}

	isToml := strings.EqualFold(filepath.Ext(file), ".toml")
	if !isToml {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	var conf Config
	if err := env.Parse(&conf); err != nil {
		return Config{}, err
	}

	if isToml {
		if err := loadToml(file, &conf); err != nil {
			return Config{}, err
		}
	}

	conf.Contracts.normalize()
	return conf, nil
}

// loadToml decodes the TOML config file from provided path if it exists
func loadToml(file string, conf *Config) error {
	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	err = toml.NewDecoder(bufio.NewReader(f)).Decode(conf)
	if _, ok := err.(*toml.LineError); ok {
		err = fmt.Errorf("%s, %w", file, err)
	}
	return err
}

func (c *Contracts) normalize() {
	if c.Link == "" {
		c.Link = c.LinkAlias
	}
	if c.Oracle == "" {
		c.Oracle = c.OracleAlias
	}
	if c.TestConsumer == "" {
		c.TestConsumer = c.TestConsumerAlias
	}
}

// EventsEndpoint is the URL used for the unsigned subscription connection.
func (c Config) EventsEndpoint() string {
	if c.EventsURL != "" {
		return c.EventsURL
	}
	return c.RPCURL
}

// PrivateKeyList splits PRIVATE_KEYS on commas. Entries are trimmed and may
// carry a 0x prefix; empty or non-hex entries are rejected.
func (c Config) PrivateKeyList() ([]string, error) {
	if strings.TrimSpace(c.PrivateKeys) == "" {
		return nil, nil
	}

	parts := strings.Split(c.PrivateKeys, ",")
	keys := make([]string, 0, len(parts))
	for i, part := range parts {
		key := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(part), "0x"), "0X")
		if b, err := hexutil.Decode("0x" + key); err != nil || len(b) != 32 {
			return nil, fmt.Errorf("%w: entry %d is not a 32 byte hex key", ErrMalformedKeyList, i)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Account returns the configured operator account, or the zero address when
// ACCOUNT_ADDRESS is unset.
func (c Config) Account() (common.Address, error) {
	return parseAddress(c.AccountAddress)
}

func (c Config) LinkAddress() (common.Address, error) {
	return parseAddress(c.Contracts.Link)
}

func (c Config) OracleAddress() (common.Address, error) {
	return parseAddress(c.Contracts.Oracle)
}

func (c Config) TestConsumerAddress() (common.Address, error) {
	return parseAddress(c.Contracts.TestConsumer)
}

func (c Config) NodeAddress() (common.Address, error) {
	return parseAddress(c.Node.Address)
}

func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMalformedAddress, s)
	}
	return common.HexToAddress(s), nil
}
