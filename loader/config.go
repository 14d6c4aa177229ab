package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Note: viper uses the mapstructure lib to unmarshal data, so we need to use the "mapstructure"
// struct tag key in addition to "json".

// Config provides all the standard config options. Use the Initialise method to configure with a provided Config.
type Config struct {
	// ConnectionString is passed to the transport as the "connection-string" option. Most transports refuse to start without it.
	ConnectionString string `mapstructure:"connection-string" json:"connection-string"`

	// Transport sets the selected transport type. Register new transport types with the `RegisterTransportType` method.
	Transport string `mapstructure:"transport" json:"transport"`

	// TransportOptions sets the options passed to the transport `Start` method. When setting this by command line flag or environment variable, use a json encoded string.
	TransportOptions map[string]interface{} `mapstructure:"transport-options" json:"transport-options"`

	// Destination sets the queue used by commands when no destination argument is given. (Default: SqlTransport-Test-Receiver).
	Destination string `mapstructure:"destination" json:"destination"`

	// Sender sets the address reported on every message. (Default: SqlTransport-Test-Sender).
	Sender string `mapstructure:"sender" json:"sender"`

	// Slots sets the number of sender slots used by the throttled commands. (Default: 20 slots).
	Slots int `mapstructure:"slots" json:"slots"`

	// MonitorInterval sets the period in ms of the queue length feedback loop. (Default: 2000 ms).
	MonitorInterval int `mapstructure:"monitor-interval" json:"monitor-interval"`

	// IdleInterval sets how long in ms a disabled slot waits before checking again. (Default: 1000 ms).
	IdleInterval int `mapstructure:"idle-interval" json:"idle-interval"`

	// StatusInterval sets how often in ms statistics are printed while a command runs. (Default: 10000 ms).
	StatusInterval int `mapstructure:"status-interval" json:"status-interval"`

	// BodyTemplate sets the template rendered into each message body. The rand_int, rand_float and rand_string functions are available.
	BodyTemplate string `mapstructure:"body-template" json:"body-template"`

	// LogLevel sets the level of diagnostic logging written to stderr. (Default: info).
	LogLevel string `mapstructure:"log-level" json:"log-level"`
}

var doc = map[string]string{
	"Config.ConnectionString": "The transport connection string.",
	"Config.Transport":        "The transport type.",
	"Config.TransportOptions": "Options passed to the transport, as json.",
	"Config.Destination":      "The default destination queue.",
	"Config.Sender":           "The sender address reported on messages.",
	"Config.Slots":            "The number of sender slots for throttled commands.",
	"Config.MonitorInterval":  "Queue length feedback period in ms.",
	"Config.IdleInterval":     "Disabled slot wait in ms.",
	"Config.StatusInterval":   "Status print period in ms.",
	"Config.BodyTemplate":     "The message body template.",
	"Config.LogLevel":         "The diagnostic log level.",
}

// LoadConfig parses command line flags and loads a config file from disk. A Config is returned which may be used with the Initialise method to complete configuration.
func (l *Loader) LoadConfig() (Config, error) {

	c := Config{}

	dryRunFlag, configFlag := l.setupFlags()

	if err := l.setupViper(configFlag); err != nil {
		return Config{}, err
	}

	if err := l.unmarshalConfig(&c); err != nil {
		return Config{}, err
	}

	if dryRunFlag {
		by, _ := json.MarshalIndent(c, "", "\t")
		fmt.Println(string(by))
		os.Exit(0)
	}

	return c, nil
}

func (l *Loader) setupFlags() (dryRunFlag bool, configFlag string) {
	dryRunFlagRaw := pflag.Bool("dry", false, "`` If true, just prints the current config and exits.")
	configFlagRaw := pflag.String("config", "", "`` The config file to load.")

	pflag.String("connection-string", "", "`` "+doc["Config.ConnectionString"])
	pflag.String("transport", "", "`` "+doc["Config.Transport"])
	pflag.String("transport-options", "", "`` "+doc["Config.TransportOptions"])
	pflag.String("destination", DefaultDestination, "`` "+doc["Config.Destination"])
	pflag.String("sender", DefaultSender, "`` "+doc["Config.Sender"])
	pflag.Int("slots", DefaultSlots, "`` "+doc["Config.Slots"])
	pflag.Int("monitor-interval", int(DefaultMonitorInterval/time.Millisecond), "`` "+doc["Config.MonitorInterval"])
	pflag.Int("idle-interval", int(DefaultIdleInterval/time.Millisecond), "`` "+doc["Config.IdleInterval"])
	pflag.Int("status-interval", int(DefaultStatusInterval/time.Millisecond), "`` "+doc["Config.StatusInterval"])
	pflag.String("body-template", DefaultBodyTemplate, "`` "+doc["Config.BodyTemplate"])
	pflag.String("log-level", "info", "`` "+doc["Config.LogLevel"])

	pflag.Parse()

	if dryRunFlagRaw != nil {
		dryRunFlag = *dryRunFlagRaw
	}
	if configFlagRaw != nil {
		configFlag = *configFlagRaw
	}
	return dryRunFlag, configFlag
}

func (l *Loader) setupViper(configFlag string) error {

	if configFlag != "" {
		l.viper.SetConfigFile(configFlag)
	} else {
		l.viper.SetConfigName("qload-config") // name of config file (without extension)
		l.viper.AddConfigPath("/etc/qload/")
		l.viper.AddConfigPath("$HOME/.config/qload/")
		l.viper.AddConfigPath(".")
	}
	if err := l.viper.ReadInConfig(); err != nil {
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			return errors.WithStack(err)
		}
	}

	if err := l.viper.BindPFlags(pflag.CommandLine); err != nil {
		return errors.WithStack(err)
	}

	setDefaults(l.viper)

	l.viper.SetEnvPrefix("qload")
	l.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	l.viper.AutomaticEnv()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("connection-string", "")
	v.SetDefault("config", "")
	v.SetDefault("transport", "")
	v.SetDefault("transport-options", map[string]interface{}{})
	v.SetDefault("destination", DefaultDestination)
	v.SetDefault("sender", DefaultSender)
	v.SetDefault("slots", DefaultSlots)
	v.SetDefault("monitor-interval", int(DefaultMonitorInterval/time.Millisecond))
	v.SetDefault("idle-interval", int(DefaultIdleInterval/time.Millisecond))
	v.SetDefault("status-interval", int(DefaultStatusInterval/time.Millisecond))
	v.SetDefault("body-template", DefaultBodyTemplate)
	v.SetDefault("log-level", "info")
}

func (l *Loader) unmarshalConfig(c *Config) error {
	for key, target := range map[string]interface{}{
		"connection-string": &c.ConnectionString,
		"transport":         &c.Transport,
		"destination":       &c.Destination,
		"sender":            &c.Sender,
		"slots":             &c.Slots,
		"monitor-interval":  &c.MonitorInterval,
		"idle-interval":     &c.IdleInterval,
		"status-interval":   &c.StatusInterval,
		"body-template":     &c.BodyTemplate,
		"log-level":         &c.LogLevel,
	} {
		if err := l.viper.UnmarshalKey(key, target); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := l.viper.UnmarshalKey("transport-options", &c.TransportOptions); err != nil {
		// if map type data is actually a string, unmarshal it from json
		if s := l.viper.GetString("transport-options"); s != "" {
			if err := json.Unmarshal([]byte(s), &c.TransportOptions); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}

// Initialise configures the Loader with config options in a provided Config
func (l *Loader) Initialise(ctx context.Context, c Config) error {

	logger, err := NewLogger(c.LogLevel)
	if err != nil {
		return err
	}
	l.SetLogger(logger)

	if c.Slots != 0 {
		l.Slots = c.Slots
	}
	if c.Destination != "" {
		l.Destination = c.Destination
	}
	if c.Sender != "" {
		l.Sender = c.Sender
	}
	if c.MonitorInterval > 0 {
		l.MonitorInterval = time.Duration(c.MonitorInterval) * time.Millisecond
	}
	if c.IdleInterval > 0 {
		l.IdleInterval = time.Duration(c.IdleInterval) * time.Millisecond
	}
	if c.StatusInterval > 0 {
		l.StatusInterval = time.Duration(c.StatusInterval) * time.Millisecond
	}

	if c.BodyTemplate != "" {
		if err := l.SetBodyTemplate(c.BodyTemplate); err != nil {
			return err
		}
	}

	if c.Transport == "" {
		return errors.New("transport must be specified")
	}
	tf, ok := l.transportTypes[c.Transport]
	if !ok {
		return errors.Errorf("transport type %s not found", c.Transport)
	}
	l.SetTransport(tf())

	options := map[string]interface{}{}
	for k, v := range c.TransportOptions {
		options[k] = v
	}
	if c.ConnectionString != "" {
		options["connection-string"] = c.ConnectionString
	}
	l.SetTransportOptions(options)

	return nil
}
