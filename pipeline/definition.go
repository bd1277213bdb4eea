package pipeline

import (
	"github.com/AlecRosenbaum/GearGen/env"
	"github.com/AlecRosenbaum/GearGen/trigger"
)

// Definition is the declarative input of the pipeline: the stage plan,
// the artifact patterns, the environment to build in, and the target to
// publish to. Definitions are immutable once loaded.
type Definition struct {
	// APIVersion declares the definition format version.
	APIVersion string `json:"apiVersion" yaml:"apiVersion"`

	// Name identifies the pipeline.
	Name string `json:"name" yaml:"name"`

	// Target is the logical deployment target key (e.g. "pages"). All
	// runs sharing a target serialize at the deployment gate.
	Target string `json:"target" yaml:"target"`

	// Trigger gates whether an event starts a run at all.
	Trigger trigger.Filter `json:"trigger,omitempty" yaml:"trigger,omitempty"`

	// Environment describes the build environment.
	Environment env.Spec `json:"environment" yaml:"environment"`

	// Stages is the ordered stage plan.
	Stages []Stage `json:"stages" yaml:"stages"`

	// Artifacts maps logical artifact names to glob patterns resolved
	// against the environment workspace after all stages succeed.
	Artifacts map[string]string `json:"artifacts" yaml:"artifacts"`

	// Publish selects and configures the publisher.
	Publish PublishConfig `json:"publish,omitempty" yaml:"publish,omitempty"`
}

// PublishConfig selects the hosting backend for a definition.
type PublishConfig struct {
	// Type is the publisher kind: "oci" or "s3".
	Type string `json:"type" yaml:"type"`

	// Repository is the OCI repository reference (oci type).
	Repository string `json:"repository,omitempty" yaml:"repository,omitempty"`

	// Bucket, Region, Prefix and Endpoint configure the s3 type.
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}
