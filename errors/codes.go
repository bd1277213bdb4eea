// Package errors provides the error handling system for the GearGen
// pipeline. It extends Go's standard error handling with structured error
// codes, context preservation, and full errors.Is/As compatibility.
package errors

// Code represents a specific error condition in the pipeline.
// Codes are string-based for debuggability and natural JSON serialization.
type Code string

const (
	// Configuration errors.

	// CodeInvalidConfig indicates a pipeline definition is invalid or malformed.
	CodeInvalidConfig Code = "INVALID_CONFIG"

	// CodeUnsupportedVersion indicates a definition declares an apiVersion
	// this build does not support.
	CodeUnsupportedVersion Code = "UNSUPPORTED_VERSION"

	// Pipeline errors.

	// CodeProvisionFailed indicates the build environment could not be built.
	CodeProvisionFailed Code = "PROVISION_FAILED"

	// CodeStageFailed indicates a stage command exited non-zero.
	CodeStageFailed Code = "STAGE_FAILED"

	// CodeCollectionFailed indicates an expected artifact glob matched nothing.
	CodeCollectionFailed Code = "COLLECTION_FAILED"

	// CodePublishFailed indicates the hosting target rejected the push.
	CodePublishFailed Code = "PUBLISH_FAILED"

	// CodeTriggerFiltered indicates the trigger event did not pass the
	// definition's branch filter, so no run was started.
	CodeTriggerFiltered Code = "TRIGGER_FILTERED"

	// Infrastructure errors.

	// CodeTimeout indicates an operation exceeded its configured time limit.
	CodeTimeout Code = "TIMEOUT"

	// System errors.

	// CodeInternal indicates an internal system error occurred.
	CodeInternal Code = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown Code = "UNKNOWN"
)
