package config

import (
	"fmt"
	"slices"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/pipeline"
)

// BuildersFrom resolves every enabled channel through registry and returns
// one builder per channel, in file order. Disabled channels are skipped.
// Endpoint configuration is parsed here so unknown kinds and malformed
// configuration fail before anything is built.
func BuildersFrom(cfg *Config, registry *component.Registry) ([]*pipeline.Builder, error) {
	if cfg == nil || registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Config", "BuildersFrom", "nil config or registry")
	}

	var (
		builders []*pipeline.Builder
		errs     []error
	)
	for _, ch := range cfg.Enabled() {
		b, err := builderFor(ch, registry)
		if err != nil {
			errs = append(errs, errors.Wrap(err, "Config", "BuildersFrom", fmt.Sprintf("channel %s", ch.ID)))
			continue
		}
		builders = append(builders, b)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return builders, nil
}

func builderFor(ch ChannelConfig, registry *component.Registry) (*pipeline.Builder, error) {
	outer, err := registry.CreateMetadata(ch.Outer.Kind, ch.Outer.Config)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "builderFor", "outer")
	}

	b := pipeline.NewBuilder(ch.ID).Outer(outer)
	if ch.Group != "" {
		b.Group(ch.Group)
	}
	if ch.KeepExceptions > 0 {
		b.KeepExceptions(ch.KeepExceptions)
	}
	if ch.Inner != nil {
		inner, err := registry.CreateMetadata(ch.Inner.Kind, ch.Inner.Config)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "builderFor", "inner")
		}
		b.Inner(inner)
	}

	for i, mw := range ch.Middlewares {
		if !slices.Contains(registry.Kinds(component.RoleMiddleware), mw.Kind) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownKind, mw.Kind),
				"Config", "builderFor", fmt.Sprintf("middlewares[%d]", i))
		}
		b.UseKind(registry, mw.Kind, mw.Config)
	}
	return b, nil
}
