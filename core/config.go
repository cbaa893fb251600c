package core

import (
	"fmt"
	"strings"
	"time"
)

type MetaLeadConfig struct {
	AppSecret    string        `koanf:"app_secret" mapstructure:"app_secret"`
	VerifyToken  string        `koanf:"verify_token" mapstructure:"verify_token"`
	GraphBaseURL string        `koanf:"graph_base_url" mapstructure:"graph_base_url"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" mapstructure:"fetch_timeout"`
}

type EstateXMLConfig struct {
	PushToken string `koanf:"push_token" mapstructure:"push_token"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	MetaLead    MetaLeadConfig  `koanf:"metalead" mapstructure:"metalead"`
	EstateXML   EstateXMLConfig `koanf:"estatexml" mapstructure:"estatexml"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "leads",
		MetaLead: MetaLeadConfig{
			GraphBaseURL: "https://graph.facebook.com/v19.0",
			FetchTimeout: 10 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.MetaLead.FetchTimeout < 0 {
		return fmt.Errorf("core: metalead fetch_timeout must not be negative")
	}
	return nil
}
