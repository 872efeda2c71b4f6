package kickrunner_test

import (
	"context"
	"fmt"

	kickrunner "github.com/Swind/go-kick-runner"
)

// ExampleStartWorker demonstrates the kick/wait/destroy cycle with one import.
func ExampleStartWorker() {
	frame := 0
	w := kickrunner.StartWorker(nil, func(ctx context.Context) {
		frame++
		fmt.Println("frame", frame)
	})

	for range 3 {
		w.Signal()
		w.Wait()
	}
	w.Destroy()

	fmt.Println("accepted after destroy:", w.Signal())

	// Output:
	// frame 1
	// frame 2
	// frame 3
	// accepted after destroy: false
}

// ExampleGroup demonstrates driving several workers per frame.
func ExampleGroup() {
	g := kickrunner.NewGroup(nil)
	defer g.Destroy()

	for _, name := range []string{"audio", "render"} {
		_, _ = g.Add(name, func(ctx context.Context) {})
	}

	accepted := g.SignalAll()
	g.WaitAll()

	fmt.Println(accepted["audio"], accepted["render"])
	fmt.Println(len(g.Stats()))

	// Output:
	// true true
	// 2
}
