// Package publish pushes collected artifact sets to a hosting target.
// Publishers are called only while holding a deployment gate permit for
// the target; they perform no retries of their own — a failed publish is
// terminal for its deployment.
package publish

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/AlecRosenbaum/GearGen/artifact"
)

// Deployment records one completed publish attempt.
type Deployment struct {
	// Target is the logical target identifier the artifacts went to.
	Target string

	// URL is where the published artifacts are publicly visible.
	URL string

	// Digest identifies the published artifact set.
	Digest digest.Digest

	// CompletedAt is when the publish finished.
	CompletedAt time.Time
}

// Publisher pushes an artifact set to a hosting target.
type Publisher interface {
	// Publish makes the set visible at the target's public endpoint and
	// returns the resulting deployment. The caller must hold the
	// deployment gate permit for target for the full duration of the
	// call.
	Publish(ctx context.Context, set *artifact.Set, target string) (*Deployment, error)
}
