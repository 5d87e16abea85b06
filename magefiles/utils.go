//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

// goRun describes one invocation of the go tool.
type goRun struct {
	args  []string
	env   []string
	quiet bool // buffer output, print it only on failure
}

type goOption func(*goRun)

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(env ...string) goOption {
	return func(r *goRun) {
		r.env = append(r.env, env...)
	}
}

func quiet() goOption {
	return func(r *goRun) {
		r.quiet = true
	}
}

// goCmd runs `go <args...>` from the module root.
func goCmd(args []string, options ...goOption) error {
	r := &goRun{args: args}
	for _, o := range options {
		o(r)
	}

	prefix := ""
	if len(r.env) > 0 {
		prefix = strings.Join(r.env, " ") + " "
	}
	fmt.Printf("> %sgo %s\n", prefix, strings.Join(r.args, " "))

	cmd := exec.Command(mg.GoCmd(), r.args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var b bytes.Buffer
	if r.quiet && !mg.Verbose() {
		cmd.Stdout = &b
		cmd.Stderr = &b
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = io.MultiWriter(&b, os.Stderr)
	}
	if err := cmd.Run(); err != nil {
		if r.quiet && !mg.Verbose() {
			os.Stderr.Write(b.Bytes())
		}
		return fmt.Errorf("go %s: %w", r.args[0], err)
	}
	return nil
}
