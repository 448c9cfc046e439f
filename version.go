// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	goversion "github.com/hashicorp/go-version"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "0.1.0"

// prerelease is empty for final releases,
// otherwise e.g. "dev", "beta" or "rc1".
var prerelease = "dev"

// semVer validates at init time that version is a proper semantic version.
var semVer *goversion.Version

func init() {
	var err error
	semVer, err = goversion.NewVersion(version)
	if err != nil {
		panic(err.Error())
	}
	if prerelease != "" {
		semVer, err = goversion.NewVersion(version + "-" + prerelease)
		if err != nil {
			panic(err.Error())
		}
	}
}

// VersionString returns the complete version string, including prerelease.
func VersionString() string {
	return semVer.String()
}
