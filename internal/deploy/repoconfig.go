package deploy

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

// repoConfig is the optional per-repository override file (ployer.yaml at
// the repo root), generalizing the teacher's basepod.yaml convention: a
// repository can pin its own Dockerfile path and container port without
// the operator configuring them out of band.
type repoConfig struct {
	Dockerfile string `yaml:"dockerfile" json:"dockerfile"`
	Port       int    `yaml:"port" json:"port"`
}

// readRepoConfig reads path if it exists, trying YAML first and falling
// back to JSON, matching the teacher's forgiving parse order. A missing or
// unparseable file is not an error: it simply yields a zero-value config.
func readRepoConfig(path string) repoConfig {
	var cfg repoConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		_ = json.Unmarshal(data, &cfg)
	}
	return cfg
}
