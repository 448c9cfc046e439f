// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeOptions_nil(t *testing.T) {
	out, err := DecodeOptions(DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(DefaultOptions(), out.Options); diff != "" {
		t.Fatalf("expected defaults for nil input: %s", diff)
	}
}

func TestDecodeOptions_wrongType(t *testing.T) {
	_, err := DecodeOptions(DefaultOptions(), map[string]interface{}{
		"port": "not-a-port",
	})
	if err == nil {
		t.Fatal("expected decoding of wrong type to result in error")
	}
}

func TestDecodeOptions_success(t *testing.T) {
	base := DefaultOptions()
	base.TokenKey = "from-file"

	out, err := DecodeOptions(base, map[string]interface{}{
		"port":             9000,
		"allow_mock_token": true,
		"unknown":          1,
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := DefaultOptions()
	expected.Port = 9000
	expected.AllowMockToken = true
	expected.TokenKey = "from-file"
	if diff := cmp.Diff(expected, out.Options); diff != "" {
		t.Fatalf("options mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"unknown"}, out.UnusedKeys); diff != "" {
		t.Fatalf("unused keys mismatch: %s", diff)
	}
	if base.Port != DefaultPort {
		t.Fatal("expected base options to stay untouched")
	}
}

func TestOptions_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shirow.hcl")
	err := os.WriteFile(path, []byte(`
port            = 8000
token_key       = "secret"
token_algorithm = "HS512"
allowed_origins = ["example.com"]
call_rate       = 2.5

token_store {
  backend = "redis"
  address = "localhost:6379"
  db      = 1
}

tracing {
  exporter = "otlp"
  endpoint = "localhost:4318"
  insecure = true
}
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	err = opts.LoadFile(path, true)
	if err != nil {
		t.Fatal(err)
	}

	expected := DefaultOptions()
	expected.Port = 8000
	expected.TokenKey = "secret"
	expected.TokenAlgorithm = "HS512"
	expected.AllowedOrigins = []string{"example.com"}
	expected.CallRate = 2.5
	expected.TokenStore = &TokenStore{
		Backend: "redis",
		Address: "localhost:6379",
		DB:      1,
	}
	expected.Tracing = &Tracing{
		Exporter: "otlp",
		Endpoint: "localhost:4318",
		Insecure: true,
	}
	if diff := cmp.Diff(expected, opts); diff != "" {
		t.Fatalf("options mismatch: %s", diff)
	}
	if err := opts.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestOptions_LoadFile_missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.hcl")

	opts := DefaultOptions()
	if err := opts.LoadFile(path, false); err != nil {
		t.Fatalf("expected missing optional file to be ignored: %s", err)
	}
	if err := opts.LoadFile(path, true); err == nil {
		t.Fatal("expected missing required file to fail")
	}
}

func TestOptions_LoadFile_invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shirow.hcl")
	err := os.WriteFile(path, []byte(`port = "eight"`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	if err := DefaultOptions().LoadFile(path, true); err == nil {
		t.Fatal("expected invalid file to fail")
	}
}

func TestOptions_Key(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	err := os.WriteFile(path, []byte("pem-data"), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.TokenKeyFile = path
	key, err := opts.Key()
	if err != nil {
		t.Fatal(err)
	}
	if string(key) != "pem-data" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestOptions_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Options)
	}{
		{"port", func(o *Options) { o.Port = 0 }},
		{"tcp port", func(o *Options) { o.TCPPort = 70000 }},
		{"same ports", func(o *Options) { o.TCPPort = o.Port }},
		{"two keys", func(o *Options) { o.TokenKey = "a"; o.TokenKeyFile = "/b" }},
		{"algorithm", func(o *Options) { o.TokenAlgorithm = "XS256" }},
		{"none algorithm", func(o *Options) { o.TokenAlgorithm = "none" }},
		{"read limit", func(o *Options) { o.ReadLimit = -1 }},
		{"call rate", func(o *Options) { o.CallRate = -1 }},
		{"store backend", func(o *Options) { o.TokenStore = &TokenStore{Backend: "etcd"} }},
		{"redis address", func(o *Options) { o.TokenStore = &TokenStore{Backend: "redis"} }},
		{"trace exporter", func(o *Options) { o.Tracing = &Tracing{Exporter: "zipkin"} }},
		{"trace ratio", func(o *Options) { o.Tracing = &Tracing{Exporter: "stdout", SampleRatio: 2} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.modify(opts)
			if err := opts.Validate(); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}

	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid: %s", err)
	}
}

func TestDefaultOptions_denyCommands(t *testing.T) {
	opts := DefaultOptions()
	if len(opts.AllowedCommands) != 0 {
		t.Fatalf("expected no command to be allowed by default, given %q", opts.AllowedCommands)
	}
	if opts.Tracing != nil {
		t.Fatalf("expected tracing to be disabled by default, given %#v", opts.Tracing)
	}
}
