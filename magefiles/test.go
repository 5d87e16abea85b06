//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	return goCmd([]string{"test", "./..."})
}

// Runs the tests with the race detector, which needs cgo. The batch converter
// is the only concurrent code, so its package runs verbosely.
func (Test) Race() error {
	if err := goCmd([]string{"test", "-race", "-v", "./internal/pipeline/..."}, withEnv("CGO_ENABLED=1")); err != nil {
		return err
	}
	return goCmd([]string{"test", "-race", "./..."}, withEnv("CGO_ENABLED=1"))
}

// Runs go vet over the module.
func Vet() error {
	return goCmd([]string{"vet", "./..."}, quiet())
}
