package worker_test

import (
	"context"
	"fmt"

	"spindle/core/worker"

	"go.uber.org/zap"
)

func ExampleWorker() {
	w, err := worker.New(worker.WithName("example"), worker.WithLogger(zap.NewNop()))
	if err != nil {
		panic(err)
	}

	_ = w.Submit(func() { fmt.Println("A") })
	_ = w.Submit(func() { fmt.Println("B") })
	_ = w.Stop(context.Background())

	if err := w.Submit(func() { fmt.Println("C") }); err != nil {
		fmt.Println("rejected:", err)
	}
	// Output:
	// A
	// B
	// rejected: worker stopped
}
