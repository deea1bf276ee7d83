package config

import "time"

//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration Collector Upload
type Configuration struct {
	Collector Collector `debugmap:"visible"`
	Upload    Upload    `debugmap:"visible"`

	// Log
	LogFormat string `debugmap:"visible" default:"console"`
	LogLevel  string `debugmap:"visible" default:"info"`
	LogFile   string `debugmap:"visible"`
}

type Collector struct {
	ConfigFile          string        `debugmap:"visible" default:"~/.config/scc-hypervisor-collector.yaml"`
	ConfigDir           string        `debugmap:"visible" default:"~/.config/scc-hypervisor-collector.d"`
	Check               bool          `debugmap:"visible"`
	SkipPermissionCheck bool          `debugmap:"visible"`
	Mode                string        `debugmap:"visible" default:"full"`
	ResultsFile         string        `debugmap:"visible"`
	Workers             int           `debugmap:"visible" default:"4"`
	BackendTimeout      time.Duration `debugmap:"visible" default:"5m"`
	MetricsFile         string        `debugmap:"visible"`
}

type Upload struct {
	SccURL  string        `debugmap:"visible" default:"https://scc.suse.com"`
	Retries int           `debugmap:"visible" default:"3"`
	Timeout time.Duration `debugmap:"visible" default:"60s"`
}
