// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"time"
)

// MockEnvVar carries the expected invocation to the re-executed test binary.
const MockEnvVar = "SHIROW_PROCESS_MOCK"

type Mock struct {
	Argv          []string      `json:"argv"`
	Stdout        string        `json:"stdout"`
	// StdoutRepeat writes Stdout that many times, for output
	// too large to pass through the environment.
	StdoutRepeat  int           `json:"stdout_repeat"`
	Stderr        string        `json:"stderr"`
	SleepDuration time.Duration `json:"sleep"`
	ExitCode      int           `json:"exit_code"`
}

// MockExecutor returns an executor which re-executes the running test
// binary instead of the requested command. The test binary must call
// ExecuteMock from TestMain when MockEnvVar is set. Every command is
// allowed until SetAllowedCommands is called.
func MockExecutor(m *Mock) *Executor {
	if m == nil {
		m = &Mock{}
	}

	executor := NewExecutor()
	executor.cmdCtxFunc = mockCommandCtxFunc(m)
	executor.allowAll = true
	return executor
}

func mockCommandCtxFunc(m *Mock) cmdCtxFunc {
	return func(ctx context.Context, path string, arg ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], append([]string{path}, arg...)...)

		expectedJson, _ := json.Marshal(m)
		cmd.Env = []string{MockEnvVar + "=" + string(expectedJson)}

		return cmd
	}
}

func ExecuteMock(rawMockData string) int {
	m := &Mock{}
	err := json.Unmarshal([]byte(rawMockData), m)
	if err != nil {
		fmt.Fprint(os.Stderr, "unable to unmarshal mock response")
		return 1
	}

	givenArgv := os.Args[1:]
	if m.Argv != nil && !reflect.DeepEqual(m.Argv, givenArgv) {
		fmt.Fprintf(os.Stderr, "arguments don't match.\nexpected: %q\ngiven: %q\n",
			m.Argv, givenArgv)
		return 1
	}

	if m.SleepDuration > 0 {
		time.Sleep(m.SleepDuration)
	}

	repeat := m.StdoutRepeat
	if repeat < 1 {
		repeat = 1
	}
	for i := 0; i < repeat; i++ {
		fmt.Fprint(os.Stdout, m.Stdout)
	}
	fmt.Fprint(os.Stderr, m.Stderr)

	return m.ExitCode
}
