/*
Package loader provides the back-end for qload - a tool that drives synthetic load into a message
queue at a controlled rate.

 Qload
 =====

 * Messages are sent to a destination queue by a pool of sender slots.
 * Four send patterns are available: fill, full speed, queue-length target and constant throughput.
 * The queue-length target command measures the backlog every two seconds and enables or disables
   one slot at a time to keep it near the target.
 * The constant throughput command releases permits on a cumulative schedule, so a late wake-up
   catches up instead of drifting.
 * Qload is transport agnostic, and adding a new transport type is trivial.

 Usage
 =====
 ```
 qload [options]
 ```

 Commands
 ========

 The prompt lists the commands. A command is selected by any prefix of its key, and arguments
 follow separated by spaces. Press enter while a command runs to stop it.

 ```
 Select command:
 f|Fill the destination queue. Syntax: f [total=1000] [tasks=5] [destination]
 s|Start sending messages at full speed. Syntax: s [tasks=5] [destination]
 t|Throttled sending that keeps the destination queue length at n. Syntax: t <n> <destination>
 c|Constant-throughput sending. Syntax: c <rate> <destination>
 r|Send a single reset statistics message. Syntax: r [destination]
 i|Print send statistics. Syntax: i
 Press enter to stop a running command.
 ```

 Status
 ======

 Qload prints a summary every ten seconds while a command runs, and once more when it finishes.
 Each command gets a new column of metrics. Sends are summarised by outcome: ok, transient, fatal
 and cancelled.

 Config
 ======
 Qload is configured by config file, command line flags or environment variables. The `--config`
 flag specifies the config file to load, and can be `json`, `yaml`, `toml` or anything else that
 [viper](https://github.com/spf13/viper) can read. If the config flag is omitted, qload searches
 for `qload-config.xxx` in the current directory, `$HOME/.config/qload/` and `/etc/qload/`.

 Environment variables and command line flags override config file options. Environment variables
 are upper case and prefixed with "QLOAD" e.g. `QLOAD_CONNECTION_STRING`.

 Templates
 =========
 The `body-template` option is rendered using the Go text/template system for every message.
 `{{ .type }}` is replaced with the message type.

 Additionally, several simple functions are available to inject random data:

 * `{{ rand_int -5 5 }}` - a random integer between -5 and 5.
 * `{{ rand_float -5 5 }}` - a random float between -5 and 5.
 * `{{ rand_string 10 }}` - a random string, length 10.

*/
package loader
