//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the meshseq binary into bin/.
func (Build) CLI() error {
	return goCmd([]string{"build", "-o", "bin/meshseq", "./cmd/meshseq"})
}

// Downloads modules and verifies go.sum.
func (Build) Deps() error {
	if err := goCmd([]string{"mod", "download"}, quiet()); err != nil {
		return err
	}
	return goCmd([]string{"mod", "verify"})
}
