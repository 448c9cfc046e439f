// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/mitchellh/mapstructure"
	"github.com/tolstoyevsky/shirow/internal/token"
)

const (
	DefaultConfigFile = "shirow.hcl"
	DefaultPort       = 8888
	DefaultReadLimit  = 1 << 20

	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"

	TraceExporterOTLP   = "otlp"
	TraceExporterStdout = "stdout"
)

type TokenStore struct {
	Backend  string `hcl:"backend" mapstructure:"backend"`
	Address  string `hcl:"address,optional" mapstructure:"address"`
	Password string `hcl:"password,optional" mapstructure:"password"`
	DB       int    `hcl:"db,optional" mapstructure:"db"`
}

// Tracing enables exporting spans of procedure calls.
type Tracing struct {
	Exporter    string  `hcl:"exporter" mapstructure:"exporter"`
	Endpoint    string  `hcl:"endpoint,optional" mapstructure:"endpoint"`
	Insecure    bool    `hcl:"insecure,optional" mapstructure:"insecure"`
	SampleRatio float64 `hcl:"sample_ratio,optional" mapstructure:"sample_ratio"`
}

type Options struct {
	Address string `hcl:"address,optional" mapstructure:"address"`
	Port    int    `hcl:"port,optional" mapstructure:"port"`
	// TCPPort enables the framed TCP transport when set.
	TCPPort int `hcl:"tcp_port,optional" mapstructure:"tcp_port"`

	TokenKey string `hcl:"token_key,optional" mapstructure:"token_key"`
	// TokenKeyFile is read instead of TokenKey, e.g. for a PEM public key.
	TokenKeyFile   string `hcl:"token_key_file,optional" mapstructure:"token_key_file"`
	TokenAlgorithm string `hcl:"token_algorithm,optional" mapstructure:"token_algorithm"`
	AllowMockToken bool   `hcl:"allow_mock_token,optional" mapstructure:"allow_mock_token"`

	TokenStore *TokenStore `hcl:"token_store,block" mapstructure:"token_store"`

	AllowedOrigins []string `hcl:"allowed_origins,optional" mapstructure:"allowed_origins"`
	ReadLimit      int64    `hcl:"read_limit,optional" mapstructure:"read_limit"`
	CallRate       float64  `hcl:"call_rate,optional" mapstructure:"call_rate"`
	CallBurst      int      `hcl:"call_burst,optional" mapstructure:"call_burst"`

	AllowedCommands []string `hcl:"allowed_commands,optional" mapstructure:"allowed_commands"`

	LogFile string `hcl:"log_file,optional" mapstructure:"log_file"`

	Tracing *Tracing `hcl:"tracing,block" mapstructure:"tracing"`
}

func DefaultOptions() *Options {
	return &Options{
		Port:           DefaultPort,
		TokenAlgorithm: token.DefaultAlgorithm,
		ReadLimit:      DefaultReadLimit,
	}
}

// LoadFile decodes the HCL (or JSON) configuration file on top of o.
// Attributes absent from the file keep their current value.
// A missing file is only an error when required is set.
func (o *Options) LoadFile(path string, required bool) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}

	err = hclsimple.DecodeFile(path, nil, o)
	if err != nil {
		return fmt.Errorf("failed to load configuration file: %w", err)
	}
	return nil
}

// Key returns the token key material, reading TokenKeyFile if set.
// No key at all is not an error here.
func (o *Options) Key() ([]byte, error) {
	if o.TokenKeyFile != "" {
		b, err := os.ReadFile(o.TokenKeyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read token key: %w", err)
		}
		return b, nil
	}
	return []byte(o.TokenKey), nil
}

func (o *Options) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("invalid port: %d", o.Port)
	}
	if o.TCPPort < 0 || o.TCPPort > 65535 {
		return fmt.Errorf("invalid TCP port: %d", o.TCPPort)
	}
	if o.TCPPort != 0 && o.TCPPort == o.Port {
		return fmt.Errorf("port and TCP port must differ, both are %d", o.Port)
	}

	if o.TokenKey != "" && o.TokenKeyFile != "" {
		return fmt.Errorf("at most one of `token_key` and `token_key_file` could be set")
	}
	if err := token.CheckAlgorithm(o.TokenAlgorithm); err != nil {
		return err
	}

	if o.ReadLimit < 0 {
		return fmt.Errorf("read limit must not be negative, %d given", o.ReadLimit)
	}
	if o.CallRate < 0 || o.CallBurst < 0 {
		return fmt.Errorf("call rate and burst must not be negative")
	}

	if ts := o.TokenStore; ts != nil {
		switch ts.Backend {
		case StoreBackendRedis:
			if ts.Address == "" {
				return fmt.Errorf("the redis token store requires an address")
			}
		case StoreBackendMemory:
		default:
			return fmt.Errorf("unknown token store backend: %q", ts.Backend)
		}
		if ts.DB < 0 {
			return fmt.Errorf("invalid token store db: %d", ts.DB)
		}
	}

	if tr := o.Tracing; tr != nil {
		switch tr.Exporter {
		case TraceExporterOTLP, TraceExporterStdout:
		default:
			return fmt.Errorf("unknown trace exporter: %q", tr.Exporter)
		}
		if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
			return fmt.Errorf("trace sample ratio must be within [0, 1], %v given", tr.SampleRatio)
		}
	}

	return nil
}

type DecodedOptions struct {
	Options    *Options
	UnusedKeys []string
}

// DecodeOptions applies input, usually the flags set on the command line,
// on top of base. Keys missing from input leave base untouched.
func DecodeOptions(base *Options, input interface{}) (*DecodedOptions, error) {
	var md mapstructure.Metadata
	options := *base

	config := &mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           &options,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		panic(err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	return &DecodedOptions{
		Options:    &options,
		UnusedKeys: md.Unused,
	}, nil
}
