package ferromic

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// FileRunConf records the settings a cache was built under, next to the
// cache itself.
const FileRunConf = "run_conf.json"

// RunConf is the divergence run configuration persisted with the output
// directory. Reusing a directory under a different comparison mode is
// refused: the mode is part of every cache key, so a mismatch means the
// operator pointed two different experiments at one store.
type RunConf struct {
	AllPairs   bool   `json:"all_pairs"`
	CodemlPath string `json:"codeml_path"`
	TimeoutSec int    `json:"timeout_sec"`
	Workers    int    `json:"workers"`
}

// DefaultRunConf matches the flag defaults of ferromic-dnds.
func DefaultRunConf() *RunConf {
	return &RunConf{
		AllPairs:   false,
		CodemlPath: "codeml",
		TimeoutSec: int(DefaultCodemlTimeout.Seconds()),
		Workers:    0,
	}
}

// LoadRunConf reads the persisted configuration from dir. A missing
// file returns nil, meaning a fresh output directory.
func LoadRunConf(dir string) (*RunConf, error) {
	buf, err := os.ReadFile(path.Join(dir, FileRunConf))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Could not read run configuration: %s.", err)
	}

	conf := &RunConf{}
	if err := json.Unmarshal(buf, conf); err != nil {
		return nil, fmt.Errorf("Could not parse run configuration: %s.", err)
	}
	return conf, nil
}

// Save writes the configuration into dir.
func (conf *RunConf) Save(dir string) error {
	buf, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return fmt.Errorf("Could not encode run configuration: %s.", err)
	}
	file := path.Join(dir, FileRunConf)
	if err := os.WriteFile(file, append(buf, '\n'), 0666); err != nil {
		return fmt.Errorf("Could not write '%s': %s.", file, err)
	}
	return nil
}

// CheckResume compares this run's configuration against the one the
// output directory was created with. A comparison-mode change is an
// error; tool path or timeout changes only warrant a note.
func (conf *RunConf) CheckResume(prev *RunConf) error {
	if prev == nil {
		return nil
	}
	if conf.AllPairs != prev.AllPairs {
		return fmt.Errorf("Output directory was built with all_pairs=%v; "+
			"rerun with the same mode or use a fresh directory.",
			prev.AllPairs)
	}
	if conf.CodemlPath != prev.CodemlPath {
		log.Warnf("codeml path changed from %s to %s",
			prev.CodemlPath, conf.CodemlPath)
	}
	return nil
}
