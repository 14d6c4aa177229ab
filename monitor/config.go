package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sink names accepted by the "sinks" option.
const (
	SinkRegistry   = "registry"
	SinkPrometheus = "prometheus"
	SinkCSV        = "csv"
)

// DefaultPrometheusAddr is where the prometheus sink serves /metrics.
const DefaultPrometheusAddr = ":9464"

// Config holds the monitor options. Like the sender, it is read from flags, a config file and
// QLOAD_ prefixed environment variables.
type Config struct {
	// ConnectionString is passed to the transport as the "connection-string" option.
	ConnectionString string `mapstructure:"connection-string" json:"connection-string"`

	// Transport selects the telemetry source by transport type.
	Transport string `mapstructure:"transport" json:"transport"`

	// TransportOptions are passed to the transport `Start` method. When set by flag or environment variable, use a json encoded string.
	TransportOptions map[string]interface{} `mapstructure:"transport-options" json:"transport-options"`

	// Destination is the queue measured by the default probes.
	Destination string `mapstructure:"destination" json:"destination"`

	// Interval is the sample period in ms. (Default: 1000 ms).
	Interval int `mapstructure:"interval" json:"interval"`

	// Probes maps probe names to queries. When empty, the transport's default probes are used.
	Probes map[string]string `mapstructure:"probes" json:"probes"`

	// ResetQuery is executed once on startup. When unset, the transport's default is used. Set to "-" to skip.
	ResetQuery string `mapstructure:"reset-query" json:"reset-query"`

	// Sinks lists where samples go: registry, prometheus and/or csv. (Default: registry).
	Sinks []string `mapstructure:"sinks" json:"sinks"`

	// PrometheusAddr is the listen address of the prometheus sink. (Default: :9464).
	PrometheusAddr string `mapstructure:"prometheus-addr" json:"prometheus-addr"`

	// CSVPath is the file the csv sink writes. gs://bucket/object paths are written to Google Cloud Storage.
	CSVPath string `mapstructure:"csv-path" json:"csv-path"`

	// TelemetryKey identifies the run and is attached to every published sample.
	TelemetryKey string `mapstructure:"telemetry-key" json:"telemetry-key"`

	// LogLevel sets the level of diagnostic logging. (Default: info).
	LogLevel string `mapstructure:"log-level" json:"log-level"`
}

// SampleInterval returns Interval as a duration.
func (c Config) SampleInterval() time.Duration {
	if c.Interval <= 0 {
		return DefaultInterval
	}
	return time.Duration(c.Interval) * time.Millisecond
}

// ProbeList returns the configured probes sorted by name, so the publish order is stable.
func (c Config) ProbeList() []Probe {
	var probes []Probe
	for name, query := range c.Probes {
		probes = append(probes, Probe{Name: name, Query: query})
	}
	sort.Slice(probes, func(i, j int) bool { return probes[i].Name < probes[j].Name })
	return probes
}

// Validate checks the options that can't be defaulted.
func (c Config) Validate() error {
	if c.Transport == "" {
		return errors.New("transport must be specified")
	}
	if c.TelemetryKey == "" {
		return errors.New("telemetry key is required, set QLOAD_TELEMETRY_KEY")
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkRegistry, SinkPrometheus:
		case SinkCSV:
			if c.CSVPath == "" {
				return errors.New("csv sink needs csv-path")
			}
		default:
			return errors.Errorf("unknown sink %q", s)
		}
	}
	return nil
}

// LoadConfig parses command line flags and loads a config file from disk.
func LoadConfig() (Config, error) {

	v := viper.New()

	dryRunFlag := pflag.Bool("dry", false, "`` If true, just prints the current config and exits.")
	configFlag := pflag.String("config", "", "`` The config file to load.")
	pflag.String("connection-string", "", "`` The transport connection string.")
	pflag.String("transport", "", "`` The transport type the telemetry is read from.")
	pflag.String("transport-options", "", "`` Options passed to the transport, as json.")
	pflag.String("destination", "SqlTransport-Test-Receiver", "`` The queue measured by the default probes.")
	pflag.Int("interval", int(DefaultInterval/time.Millisecond), "`` Sample period in ms.")
	pflag.String("probes", "", "`` Probe name to query map, as json.")
	pflag.String("reset-query", "", "`` Statement executed once on startup.")
	pflag.StringSlice("sinks", []string{SinkRegistry}, "`` Sinks to publish to: registry, prometheus, csv.")
	pflag.String("prometheus-addr", DefaultPrometheusAddr, "`` Listen address of the prometheus sink.")
	pflag.String("csv-path", "", "`` Output of the csv sink, a local path or gs://bucket/object.")
	pflag.String("telemetry-key", "", "`` Identifies the run on every sample.")
	pflag.String("log-level", "info", "`` The diagnostic log level.")
	pflag.Parse()

	if *configFlag != "" {
		v.SetConfigFile(*configFlag)
	} else {
		v.SetConfigName("qload-config") // name of config file (without extension)
		v.AddConfigPath("/etc/qload/")
		v.AddConfigPath("$HOME/.config/qload/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			return Config{}, errors.WithStack(err)
		}
	}
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return Config{}, errors.WithStack(err)
	}
	v.SetEnvPrefix("qload")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	c, err := unmarshalConfig(v)
	if err != nil {
		return Config{}, err
	}

	if *dryRunFlag {
		by, _ := json.MarshalIndent(c, "", "\t")
		fmt.Println(string(by))
		os.Exit(0)
	}
	return c, nil
}

func unmarshalConfig(v *viper.Viper) (Config, error) {
	c := Config{
		ConnectionString: v.GetString("connection-string"),
		Transport:        v.GetString("transport"),
		Destination:      v.GetString("destination"),
		Interval:         v.GetInt("interval"),
		ResetQuery:       v.GetString("reset-query"),
		Sinks:            v.GetStringSlice("sinks"),
		PrometheusAddr:   v.GetString("prometheus-addr"),
		CSVPath:          v.GetString("csv-path"),
		TelemetryKey:     v.GetString("telemetry-key"),
		LogLevel:         v.GetString("log-level"),
	}
	for key, target := range map[string]interface{}{
		"transport-options": &c.TransportOptions,
		"probes":            &c.Probes,
	} {
		if err := v.UnmarshalKey(key, target); err != nil {
			// if map type data is actually a string, unmarshal it from json
			if s := v.GetString(key); s != "" {
				if err := json.Unmarshal([]byte(s), target); err != nil {
					return Config{}, errors.Wrapf(err, "decoding %s", key)
				}
			}
		}
	}
	return c, nil
}
