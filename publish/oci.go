package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"

	"github.com/AlecRosenbaum/GearGen/artifact"
	"github.com/AlecRosenbaum/GearGen/errors"
)

const (
	// mediaTypeBundleLayer is the media type of the tar.gz layer holding
	// the artifact set.
	mediaTypeBundleLayer = "application/vnd.geargen.bundle.layer.v1.tar+gzip"

	// artifactTypeBundle is the artifact type of the pushed manifest.
	artifactTypeBundle = "application/vnd.geargen.bundle.v1"
)

// OCI publishes artifact sets to an OCI registry as a single-layer
// artifact, tagged with the deployment target. The public URL is the
// tagged reference.
type OCI struct {
	repository string
	options    *ociOptions
}

type ociOptions struct {
	staticRegistry string
	staticUsername string
	staticPassword string
	plainHTTP      bool
	logger         *slog.Logger
}

// OCIOption customizes an OCI publisher.
type OCIOption func(*ociOptions)

// WithStaticAuth authenticates pushes to the given registry host with a
// fixed username and password.
func WithStaticAuth(registry, username, password string) OCIOption {
	return func(o *ociOptions) {
		o.staticRegistry = registry
		o.staticUsername = username
		o.staticPassword = password
	}
}

// WithPlainHTTP allows plain HTTP registry communication (local
// registries only).
func WithPlainHTTP() OCIOption {
	return func(o *ociOptions) {
		o.plainHTTP = true
	}
}

// WithOCILogger sets the logger. Defaults to slog.Default().
func WithOCILogger(logger *slog.Logger) OCIOption {
	return func(o *ociOptions) {
		o.logger = logger
	}
}

// NewOCI creates an OCI publisher pushing to the given repository
// reference (e.g. "ghcr.io/alec/geargen-site").
func NewOCI(repository string, opts ...OCIOption) (*OCI, error) {
	if repository == "" {
		return nil, fmt.Errorf("repository cannot be empty")
	}

	options := &ociOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	if options.staticRegistry != "" {
		if options.staticUsername == "" {
			return nil, fmt.Errorf("static username required when static registry is specified")
		}
		if options.staticPassword == "" {
			return nil, fmt.Errorf("static password required when static registry is specified")
		}
	}

	return &OCI{repository: repository, options: options}, nil
}

// Publish implements Publisher. The artifact set is archived into one
// tar.gz layer, packed into an OCI manifest annotated with the set
// digest, and pushed tagged as target.
func (p *OCI) Publish(ctx context.Context, set *artifact.Set, target string) (*Deployment, error) {
	data, err := archiveSet(set)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePublishFailed, "archiving artifact set")
	}

	store := memory.New()
	layerDesc := content.NewDescriptorFromBytes(mediaTypeBundleLayer, data)
	if err := store.Push(ctx, layerDesc, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.CodePublishFailed, "staging bundle layer")
	}

	manifestDesc, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, artifactTypeBundle,
		oras.PackManifestOptions{
			Layers: []ocispec.Descriptor{layerDesc},
			ManifestAnnotations: map[string]string{
				ocispec.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
				"dev.geargen.set.digest":  set.Digest().String(),
			},
		})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePublishFailed, "packing manifest")
	}
	if err := store.Tag(ctx, manifestDesc, target); err != nil {
		return nil, errors.Wrap(err, errors.CodePublishFailed, "tagging manifest")
	}

	repo, err := p.newRepository()
	if err != nil {
		return nil, err
	}

	p.options.logger.Info("publishing bundle",
		"repository", p.repository, "target", target, "files", set.Len())
	if _, err := oras.Copy(ctx, store, target, repo, target, oras.DefaultCopyOptions); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodePublishFailed, "pushing bundle",
			map[string]interface{}{
				"repository": p.repository,
				"target":     target,
			})
	}

	return &Deployment{
		Target:      target,
		URL:         fmt.Sprintf("%s:%s", p.repository, target),
		Digest:      manifestDesc.Digest,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (p *OCI) newRepository() (*remote.Repository, error) {
	repo, err := remote.NewRepository(p.repository)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePublishFailed, "parsing repository reference")
	}
	repo.PlainHTTP = p.options.plainHTTP

	client := &auth.Client{Cache: auth.NewCache()}
	if p.options.staticRegistry != "" {
		client.Credential = auth.StaticCredential(p.options.staticRegistry, auth.Credential{
			Username: p.options.staticUsername,
			Password: p.options.staticPassword,
		})
	}
	repo.Client = client
	return repo, nil
}
