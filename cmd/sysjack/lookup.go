package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kardianos/osext"
	"gitlab.com/tozd/go/errors"
)

// lookProgram resolves the program to trace. A bare name is looked up
// beside the sysjack binary first and then in PATH. Anything with a slash
// is taken relative to the working directory.
func lookProgram(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty program name")
	}
	if !strings.Contains(name, "/") {
		if path, err := lookBesideExecutable(name); err == nil {
			return path, nil
		}
		path, err := exec.LookPath(name)
		if err != nil {
			return "", errors.WithDetails(errors.WithMessage(err, "program not found"), "name", name)
		}
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WithMessage(err, "getwd")
	}
	path, err := exec.LookPath(resolvePath(cwd, name))
	if err != nil {
		return "", errors.WithDetails(errors.WithMessage(err, "program not found"), "name", name)
	}
	return path, nil
}

func lookBesideExecutable(name string) (string, error) {
	dir, err := osext.ExecutableFolder()
	if err != nil {
		return "", err
	}
	return exec.LookPath(filepath.Join(dir, name))
}

func resolvePath(cwd string, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(cwd, path))
}
