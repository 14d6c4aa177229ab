package loader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParamKind is the type an argument is parsed as.
type ParamKind int

const (
	StringParam ParamKind = iota
	IntParam
)

// Param declares one positional argument of a command.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
	// Default is used when an optional argument is omitted. Int params parse it like input.
	Default string
}

// Command describes an action that can be started from the prompt. Commands are matched by a
// case-insensitive prefix of Key, in registration order.
type Command struct {
	Key         string
	Description string
	Params      []Param
	Action      func(ctx context.Context, args Args) error
	// Summary prints the send statistics when the action finishes.
	Summary bool
}

// Syntax renders the usage line, e.g. "f [total=1000] [tasks=5] [destination]".
func (c Command) Syntax() string {
	parts := []string{c.Key}
	for _, p := range c.Params {
		switch {
		case p.Required:
			parts = append(parts, "<"+p.Name+">")
		case p.Default != "":
			parts = append(parts, "["+p.Name+"="+p.Default+"]")
		default:
			parts = append(parts, "["+p.Name+"]")
		}
	}
	return strings.Join(parts, " ")
}

func (c Command) String() string {
	return fmt.Sprintf("%s|%s. Syntax: %s", c.Key, c.Description, c.Syntax())
}

// parse validates tokens against the declared params.
func (c Command) parse(tokens []string) (Args, error) {
	if len(tokens) > len(c.Params) {
		return Args{}, errors.Errorf("too many arguments: %d given, at most %d expected", len(tokens), len(c.Params))
	}
	args := Args{
		ints:    map[string]int{},
		strings: map[string]string{},
	}
	for i, p := range c.Params {
		var raw string
		switch {
		case i < len(tokens):
			raw = tokens[i]
		case p.Required:
			return Args{}, errors.Errorf("missing argument %s", p.Name)
		default:
			raw = p.Default
		}
		switch p.Kind {
		case IntParam:
			if raw == "" {
				continue
			}
			v, err := strconv.Atoi(raw)
			if err != nil {
				return Args{}, errors.Errorf("argument %s must be an integer, got %q", p.Name, raw)
			}
			args.ints[p.Name] = v
		default:
			args.strings[p.Name] = raw
		}
	}
	return args, nil
}

// Args holds the parsed arguments of a command.
type Args struct {
	ints    map[string]int
	strings map[string]string
}

// Int returns the named integer argument, or 0 if it was omitted with no default.
func (a Args) Int(name string) int {
	return a.ints[name]
}

// String returns the named string argument, or "" if it was omitted with no default.
func (a Args) String(name string) string {
	return a.strings[name]
}

// RegisterCommand adds a command to the prompt. Earlier registrations win prefix ties.
func (l *Loader) RegisterCommand(c Command) {
	l.commands = append(l.commands, c)
}

// Commands returns the registered commands in registration order.
func (l *Loader) Commands() []Command {
	out := make([]Command, len(l.commands))
	copy(out, l.commands)
	return out
}

// match returns the first registered command whose key starts with the lower-cased token.
func (l *Loader) match(token string) (Command, bool) {
	token = strings.ToLower(token)
	for _, c := range l.commands {
		if strings.HasPrefix(strings.ToLower(c.Key), token) {
			return c, true
		}
	}
	return Command{}, false
}

func (l *Loader) destinationOr(d string) string {
	if d == "" {
		return l.Destination
	}
	return d
}

func (l *Loader) registerBuiltinCommands() {
	l.RegisterCommand(Command{
		Key:         "f",
		Summary:     true,
		Description: "Fill the destination queue",
		Params: []Param{
			{Name: "total", Kind: IntParam, Default: strconv.Itoa(DefaultFillTotal)},
			{Name: "tasks", Kind: IntParam, Default: strconv.Itoa(DefaultFillTasks)},
			{Name: "destination"},
		},
		Action: func(ctx context.Context, args Args) error {
			return l.Fill(ctx, args.Int("total"), args.Int("tasks"), l.destinationOr(args.String("destination")))
		},
	})
	l.RegisterCommand(Command{
		Key:         "s",
		Summary:     true,
		Description: "Start sending messages at full speed",
		Params: []Param{
			{Name: "tasks", Kind: IntParam, Default: strconv.Itoa(DefaultFillTasks)},
			{Name: "destination"},
		},
		Action: func(ctx context.Context, args Args) error {
			return l.FullSpeed(ctx, args.Int("tasks"), l.destinationOr(args.String("destination")))
		},
	})
	l.RegisterCommand(Command{
		Key:         "t",
		Summary:     true,
		Description: "Throttled sending that keeps the destination queue length at n",
		Params: []Param{
			{Name: "n", Kind: IntParam, Required: true},
			{Name: "destination", Required: true},
		},
		Action: func(ctx context.Context, args Args) error {
			return l.QueueLengthSend(ctx, args.Int("n"), args.String("destination"))
		},
	})
	l.RegisterCommand(Command{
		Key:         "c",
		Summary:     true,
		Description: "Constant-throughput sending",
		Params: []Param{
			{Name: "rate", Kind: IntParam, Required: true},
			{Name: "destination", Required: true},
		},
		Action: func(ctx context.Context, args Args) error {
			return l.ConstantThroughputSend(ctx, args.Int("rate"), args.String("destination"))
		},
	})
	l.RegisterCommand(Command{
		Key:         "r",
		Summary:     true,
		Description: "Send a single reset statistics message",
		Params: []Param{
			{Name: "destination"},
		},
		Action: func(ctx context.Context, args Args) error {
			return l.Reset(ctx, l.destinationOr(args.String("destination")))
		},
	})
	l.RegisterCommand(Command{
		Key:         "i",
		Description: "Print send statistics",
		Action: func(ctx context.Context, args Args) error {
			l.printStatus()
			return nil
		},
	})
}
