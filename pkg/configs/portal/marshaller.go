package portal

import (
	"os"

	xe "github.com/amrdata/amrportal/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadPortalConfig reads, completes and validates the config file.
func LoadPortalConfig(filepath string) (*PortalConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*PortalConfig, error) {
	var out PortalConfig
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}
	out.applyDefaults()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
