// Package config loads and validates pipeline definitions. Definitions
// are written in CUE, YAML or JSON; the file extension selects the
// format. Loaded definitions are validated before use, including an
// apiVersion compatibility gate.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/AlecRosenbaum/GearGen/errors"
	"github.com/AlecRosenbaum/GearGen/fsys"
	"github.com/AlecRosenbaum/GearGen/pipeline"
)

// SupportedVersion is the definition format version this build supports.
// Definitions declare their apiVersion; compatibility uses a caret
// constraint, so any 1.x definition loads.
const SupportedVersion = "1.0.0"

// Load reads, decodes and validates the definition at path.
func Load(fsimpl fsys.FS, path string) (*pipeline.Definition, error) {
	data, err := fsimpl.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "reading definition",
			map[string]interface{}{"path": path})
	}

	var def pipeline.Definition
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		err = decodeCUE(data, &def)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &def)
	case ".json":
		err = json.Unmarshal(data, &def)
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig,
			"unsupported definition format %q (want .cue, .yaml, .yml or .json)", ext)
	}
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "decoding definition",
			map[string]interface{}{"path": path})
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// decodeCUE compiles the CUE source and decodes the resulting value into
// the definition.
func decodeCUE(data []byte, def *pipeline.Definition) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("compiling CUE: %w", err)
	}
	if err := value.Validate(); err != nil {
		return fmt.Errorf("validating CUE: %w", err)
	}
	if err := value.Decode(def); err != nil {
		return fmt.Errorf("decoding CUE: %w", err)
	}
	return nil
}

// Validate checks a definition for structural problems: version
// compatibility, required fields, unique stage names, publisher
// configuration.
func Validate(def *pipeline.Definition) error {
	compatible, err := isCompatible(def.APIVersion)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "checking apiVersion")
	}
	if !compatible {
		return errors.Newf(errors.CodeUnsupportedVersion,
			"definition apiVersion %q is not compatible with supported version %s",
			def.APIVersion, SupportedVersion)
	}

	if def.Name == "" {
		return errors.New(errors.CodeInvalidConfig, "definition has no name")
	}
	if def.Target == "" {
		return errors.New(errors.CodeInvalidConfig, "definition has no deployment target")
	}
	if def.Environment.BaseImage == "" {
		return errors.New(errors.CodeInvalidConfig, "definition environment has no base image")
	}
	if len(def.Stages) == 0 {
		return errors.New(errors.CodeInvalidConfig, "definition has no stages")
	}

	seen := make(map[string]bool, len(def.Stages))
	for i, stage := range def.Stages {
		if stage.Name == "" {
			return errors.Newf(errors.CodeInvalidConfig, "stage %d has no name", i)
		}
		if stage.Command == "" {
			return errors.Newf(errors.CodeInvalidConfig, "stage %q has no command", stage.Name)
		}
		if seen[stage.Name] {
			return errors.Newf(errors.CodeInvalidConfig, "duplicate stage name %q", stage.Name)
		}
		seen[stage.Name] = true
	}

	if len(def.Artifacts) == 0 {
		return errors.New(errors.CodeInvalidConfig, "definition has no artifact patterns")
	}
	for name, pattern := range def.Artifacts {
		if pattern == "" {
			return errors.Newf(errors.CodeInvalidConfig, "artifact %q has an empty pattern", name)
		}
	}

	return validatePublish(def.Publish)
}

func validatePublish(cfg pipeline.PublishConfig) error {
	switch cfg.Type {
	case "":
		// Publisher chosen by the caller (tests, host mode).
		return nil
	case "oci":
		if cfg.Repository == "" {
			return errors.New(errors.CodeInvalidConfig, "oci publish config has no repository")
		}
	case "s3":
		if cfg.Bucket == "" {
			return errors.New(errors.CodeInvalidConfig, "s3 publish config has no bucket")
		}
	default:
		return errors.Newf(errors.CodeInvalidConfig, "unknown publish type %q", cfg.Type)
	}
	return nil
}

// isCompatible checks a declared apiVersion against SupportedVersion
// using a caret constraint.
func isCompatible(version string) (bool, error) {
	if version == "" {
		return false, fmt.Errorf("definition declares no apiVersion")
	}
	constraint, err := semver.NewConstraint("^" + SupportedVersion)
	if err != nil {
		return false, fmt.Errorf("invalid supported version: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid apiVersion %q: %w", version, err)
	}
	return constraint.Check(v), nil
}
