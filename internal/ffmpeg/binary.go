// Package ffmpeg builds and supervises ffmpeg processes for the remux,
// re-encode, and recording paths.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// binaryEnvVar overrides binary discovery without touching the config file.
const binaryEnvVar = "RECAST_FFMPEG_BINARY"

// FindBinary resolves the ffmpeg executable. A configured path is used
// as-is and fails loudly when it is not executable; otherwise discovery
// falls back to the RECAST_FFMPEG_BINARY environment variable, a copy in
// the working directory, then PATH.
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("configured ffmpeg binary %s is not executable", configured)
	}

	if envPath := os.Getenv(binaryEnvVar); envPath != "" {
		if isExecutable(envPath) {
			return envPath, nil
		}
	}

	if isExecutable("./ffmpeg") {
		return "./ffmpeg", nil
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", errors.New("ffmpeg binary not found")
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Version reports the version of the given binary, e.g. "6.1.1".
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("probing %s: %w", binary, err)
	}
	v := parseVersion(string(out))
	if v == "" {
		return "", fmt.Errorf("unrecognised version output from %s", binary)
	}
	return v, nil
}

// parseVersion extracts the version token from -version output. The
// first line looks like "ffmpeg version 6.1.1-3ubuntu5 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
