// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/cli"
	"github.com/tolstoyevsky/shirow/internal/settings"
	"github.com/tolstoyevsky/shirow/internal/token"
)

const DefaultTokenTTL = 15 * time.Minute

// TokenCommand mints a token the server would admit, e.g. for testing
// a deployment. With -store the token also replaces the live token
// of the user in the configured token store.
type TokenCommand struct {
	Ui cli.Ui

	// flags
	configPath string
	userID     int64
	ip         string
	ttl        time.Duration
	store      bool
}

func (c *TokenCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("token")

	fs.StringVar(&c.configPath, "config", settings.DefaultConfigFile, "path to the HCL configuration file")
	fs.String("token-key", "", "key used to sign the token")
	fs.String("token-key-file", "", "path to a file holding the key used to sign the token")
	fs.String("token-algorithm", "", "HMAC algorithm to sign the token with (defaults to HS256)")
	fs.Int64Var(&c.userID, "user-id", 0, "ID of the user the token is issued to")
	fs.StringVar(&c.ip, "ip", "", "client address to embed in the token")
	fs.DurationVar(&c.ttl, "ttl", DefaultTokenTTL, "lifetime of the token, 0 for no expiry")
	fs.BoolVar(&c.store, "store", false, "save the token in the configured redis token store")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *TokenCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	opts, err := loadOptions(f, c.configPath, "user-id", "ip", "ttl", "store")
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid configuration: %s", err))
		return 1
	}
	if c.userID <= 0 {
		c.Ui.Error("A positive -user-id is required")
		return 1
	}

	key, err := opts.Key()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	identity := token.Identity{UserID: c.userID, IP: c.ip}
	encoded, err := token.MintIdentity(identity, key, opts.TokenAlgorithm, c.ttl)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to mint token: %s", err))
		return 1
	}

	if c.store {
		if opts.TokenStore == nil || opts.TokenStore.Backend != settings.StoreBackendRedis {
			c.Ui.Error("Storing tokens requires a redis token store to be configured")
			return 1
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, closeStore, err := openTokenStore(ctx, opts.TokenStore, nil)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to open token store: %s", err))
			return 1
		}
		defer closeStore()

		err = store.Set(ctx, c.userID, encoded, c.ttl)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to store token: %s", err))
			return 1
		}
	}

	c.Ui.Output(encoded)
	return 0
}

func (c *TokenCommand) Help() string {
	helpText := `
Usage: shirow token -user-id=ID [options]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *TokenCommand) Synopsis() string {
	return "Mints a token for the given user"
}
