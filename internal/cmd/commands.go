// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"flag"
	"io/ioutil"
	"strings"

	"github.com/tolstoyevsky/shirow/internal/settings"
)

func defaultFlagSet(cmdName string) *flag.FlagSet {
	f := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	f.SetOutput(ioutil.Discard)

	// Set the default Usage to empty
	f.Usage = func() {}

	return f
}

func helpForFlags(fs *flag.FlagSet) string {
	buf := &strings.Builder{}
	buf.WriteString("Options:\n\n")

	w := fs.Output()
	defer fs.SetOutput(w)
	fs.SetOutput(buf)
	fs.PrintDefaults()

	return buf.String()
}

// listFlags hold comma separated values.
var listFlags = map[string]bool{
	"allowed_origins":  true,
	"allowed_commands": true,
}

// flagOverrides collects the flags explicitly set on the command line,
// keyed the way they appear in the configuration file.
func flagOverrides(fs *flag.FlagSet, skip ...string) map[string]interface{} {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	input := make(map[string]interface{})
	fs.Visit(func(f *flag.Flag) {
		if skipped[f.Name] {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		value := f.Value.String()
		if listFlags[key] {
			input[key] = splitList(value)
			return
		}
		input[key] = value
	})
	return input
}

func splitList(value string) []string {
	list := make([]string, 0)
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			list = append(list, v)
		}
	}
	return list
}

// loadOptions reads the configuration file and applies the flags on top.
// The file is only required when its path was given explicitly.
func loadOptions(fs *flag.FlagSet, configPath string, skip ...string) (*settings.Options, error) {
	configSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configSet = true
		}
	})

	opts := settings.DefaultOptions()
	if err := opts.LoadFile(configPath, configSet); err != nil {
		return nil, err
	}

	decoded, err := settings.DecodeOptions(opts, flagOverrides(fs, append(skip, "config")...))
	if err != nil {
		return nil, err
	}
	if err := decoded.Options.Validate(); err != nil {
		return nil, err
	}
	return decoded.Options, nil
}
