package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime overrides using
// a go-options stack, then rebuilds through cfgx so validation runs on the
// merged result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	metalead := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.MetaLead.AppSecret) != "" {
		metalead["app_secret"] = cfg.MetaLead.AppSecret
	}
	if includeZero || strings.TrimSpace(cfg.MetaLead.VerifyToken) != "" {
		metalead["verify_token"] = cfg.MetaLead.VerifyToken
	}
	if includeZero || strings.TrimSpace(cfg.MetaLead.GraphBaseURL) != "" {
		metalead["graph_base_url"] = cfg.MetaLead.GraphBaseURL
	}
	if includeZero || cfg.MetaLead.FetchTimeout > time.Duration(0) {
		metalead["fetch_timeout"] = cfg.MetaLead.FetchTimeout
	}
	if len(metalead) > 0 {
		layer["metalead"] = metalead
	}

	if includeZero || strings.TrimSpace(cfg.EstateXML.PushToken) != "" {
		layer["estatexml"] = map[string]any{
			"push_token": cfg.EstateXML.PushToken,
		}
	}
	return layer
}
