// Command qload sends synthetic messages to a queue, using a rate controller selected at the prompt.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ramonsmits/qload/dummytransport"
	"github.com/ramonsmits/qload/gcstransport"
	"github.com/ramonsmits/qload/httptransport"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/redistransport"
	"github.com/ramonsmits/qload/servicebustransport"
	"github.com/ramonsmits/qload/sqltransport"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	l := loader.New(ctx, cancel)

	l.RegisterTransportType("dummy", dummytransport.New)
	l.RegisterTransportType("sql", sqltransport.New)
	l.RegisterTransportType("redis", redistransport.New)
	l.RegisterTransportType("servicebus", servicebustransport.New)
	l.RegisterTransportType("http", httptransport.New)
	l.RegisterTransportType("gcs", gcstransport.New)

	if err := l.Command(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		l.Exit()
		os.Exit(1)
	}
	l.Exit()
}
