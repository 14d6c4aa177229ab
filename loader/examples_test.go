package loader_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ramonsmits/qload/loader"
)

func ExampleLoader_Fill() {
	ctx, cancel := context.WithCancel(context.Background())
	l := loader.New(ctx, cancel)
	defer l.Exit()

	var sent atomic.Int64
	l.SetTransport(&loader.ExampleTransport{
		SendFunc: func(ctx context.Context, self *loader.ExampleTransport, msg loader.Message, destination string) error {
			sent.Add(1)
			return nil
		},
	})

	if err := l.Fill(ctx, 1000, 5, "orders"); err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Printf("Sent: %d\n", sent.Load())
	fmt.Printf("Success == 1000: %v", l.Stats().All.Summary.Success == 1000)
	// Output:
	// Sent: 1000
	// Success == 1000: true
}

func ExampleLoader_Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l := loader.New(ctx, cancel)
	defer l.Exit()

	var resets atomic.Int64
	l.SetTransport(&loader.ExampleTransport{
		SendFunc: func(ctx context.Context, self *loader.ExampleTransport, msg loader.Message, destination string) error {
			if msg.Type == loader.ResetStatistics {
				resets.Add(1)
			}
			return nil
		},
	})

	// the end of the input cancels any running command and ends the session
	l.SetInput(strings.NewReader("i\n"))
	if err := l.Start(ctx); err != nil {
		fmt.Println(err.Error())
		return
	}
	if err := l.Reset(ctx, "orders"); err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Printf("Resets: %d", resets.Load())
	// Output:
	// Resets: 1
}
