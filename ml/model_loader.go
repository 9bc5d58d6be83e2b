package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// LoadAttempt records one try at reading an artifact, for diagnostics.
type LoadAttempt struct {
	Path    string    `json:"path"`
	Decoder string    `json:"decoder,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type decoder struct {
	name       string
	extensions []string
	decode     func([]byte, *Artifact) error
}

var decoders = []decoder{
	{"json", []string{".json"}, func(data []byte, a *Artifact) error { return json.Unmarshal(data, a) }},
	{"yaml", []string{".yaml", ".yml"}, func(data []byte, a *Artifact) error { return yaml.Unmarshal(data, a) }},
	{"toml", []string{".toml"}, func(data []byte, a *Artifact) error { return toml.Unmarshal(data, a) }},
}

// decodersFor orders decoders so the one matching the file extension runs first.
func decodersFor(path string) []decoder {
	ext := strings.ToLower(filepath.Ext(path))
	ordered := make([]decoder, 0, len(decoders))
	for _, d := range decoders {
		for _, e := range d.extensions {
			if e == ext {
				ordered = append(ordered, d)
			}
		}
	}
	for _, d := range decoders {
		if len(ordered) > 0 && ordered[0].name == d.name {
			continue
		}
		ordered = append(ordered, d)
	}
	return ordered
}

// DecodeArtifact tries every decoder on data and returns the first artifact
// that decodes and validates.
func DecodeArtifact(path string, data []byte) (*Artifact, string, error) {
	var errs []error
	for _, d := range decodersFor(path) {
		var a Artifact
		if err := d.decode(data, &a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
			continue
		}
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
			continue
		}
		return &a, d.name, nil
	}
	return nil, "", errors.Join(errs...)
}

// LoadModel reads a single artifact and checks it is of the expected type.
func LoadModel(modelType, path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	artifact, _, err := DecodeArtifact(path, data)
	if err != nil {
		return nil, err
	}
	if modelType != "" && artifact.Kind != modelType {
		return nil, fmt.Errorf("%w: want %s, artifact is %s", ErrUnsupportedKind, modelType, artifact.Kind)
	}
	return artifact.Build()
}

// LoadFirst tries each candidate in order and returns the first model that
// loads, with the path it came from. It never fails: when nothing loads
// the model is nil and attempts explain why.
func LoadFirst(candidates []string, logger *zap.Logger) (Model, string, []LoadAttempt) {
	attempts := make([]LoadAttempt, 0, len(candidates))
	for _, path := range candidates {
		logger.Info("attempting to load model", zap.String("path", path))
		attempt := LoadAttempt{Path: path, At: time.Now()}

		data, err := os.ReadFile(path)
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			logger.Warn("model file unavailable", zap.String("path", path), zap.Error(err))
			continue
		}

		artifact, decoderName, err := DecodeArtifact(path, data)
		attempt.Decoder = decoderName
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			logger.Warn("model artifact rejected", zap.String("path", path), zap.Error(err))
			continue
		}

		model, err := artifact.Build()
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			logger.Warn("model build failed", zap.String("path", path), zap.Error(err))
			continue
		}

		attempt.OK = true
		attempts = append(attempts, attempt)
		logger.Info("model loaded",
			zap.String("path", path),
			zap.String("decoder", decoderName),
			zap.String("name", model.Name()),
			zap.String("version", model.Version()))
		return model, path, attempts
	}
	logger.Warn("no model artifact could be loaded", zap.Int("candidates", len(candidates)))
	return nil, "", attempts
}

// ResolveCandidates builds the search order for an artifact: configured
// paths first, then <dir>/artifacts/<file> and <dir>/<file> for each base
// directory. Duplicates are dropped.
func ResolveCandidates(configured []string, file string, baseDirs ...string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(configured)+2*len(baseDirs))
	add := func(path string) {
		if path == "" {
			return
		}
		clean := filepath.Clean(path)
		if seen[clean] {
			return
		}
		seen[clean] = true
		out = append(out, clean)
	}
	for _, path := range configured {
		add(path)
	}
	if file == "" {
		return out
	}
	for _, dir := range baseDirs {
		if dir == "" {
			continue
		}
		add(filepath.Join(dir, "artifacts", file))
		add(filepath.Join(dir, file))
	}
	return out
}

// DefaultSearchDirs is the working directory followed by the directory of
// the running executable and its parent.
func DefaultSearchDirs() []string {
	dirs := make([]string, 0, 3)
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs, dir, filepath.Dir(dir))
	}
	return dirs
}
