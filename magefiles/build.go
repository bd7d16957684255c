//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var binaryPath = filepath.Join("bin", "flowforge")

// Downloads the modules and builds the engine binary into bin/. glfw needs cgo.
func (Build) Engine() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", binaryPath, "."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}

// Runs go vet on every package.
func (Build) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
