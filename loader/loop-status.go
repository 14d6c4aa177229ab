package loader

import (
	"fmt"
	"io"
)

// PrintStatus prints the status message to the output writer
func (l *Loader) PrintStatus(writer io.Writer) {
	fmt.Fprint(writer, l.metrics.stats().String())
}

func (l *Loader) printStatus() {

	if l.outWriter == nil {
		return
	}

	l.println("")
	l.PrintStatus(l.outWriter)
}

func (l *Loader) printCommands() {
	l.println("\nSelect command:")
	for _, c := range l.commands {
		l.println(c.String())
	}
	l.println("Press enter to stop a running command.")
}

func (l *Loader) println(a ...interface{}) {
	if l.outWriter == nil {
		return
	}
	fmt.Fprintln(l.outWriter, a...)
}

func (l *Loader) printf(format string, a ...interface{}) {
	if l.outWriter == nil {
		return
	}
	fmt.Fprintf(l.outWriter, format, a...)
}
