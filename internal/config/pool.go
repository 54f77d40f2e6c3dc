package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// WorkerPool is the orchestrator's hot-reloadable worker assignment pool
// (§4.4, §A "YAML file, hot-reloaded with fsnotify"). Worker ids are plain
// strings (dev-box hostnames, per §3.1 `dev_box`).
type WorkerPool struct {
	Workers []string `yaml:"workers"`
}

// LoadWorkerPool reads and parses the pool file. A missing file yields an
// empty pool rather than an error, per §4.4 ("still polls but logs a
// warning; it never drops tasks").
func LoadWorkerPool(path string) (WorkerPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return WorkerPool{}, nil
		}
		return WorkerPool{}, err
	}
	var pool WorkerPool
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return WorkerPool{}, err
	}
	return pool, nil
}
