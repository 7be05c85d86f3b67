package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-campaigns/app/queue"
)

var consumeCmd = &cobra.Command{
	Use:   "consume campaigns <consumer_name>",
	Short: "Start a campaign submission consumer",
	Long:  "Start a consumer that reads campaign submissions from the Redis stream and dispatches them.",
	Args:  cobra.ExactArgs(2),
	Run:   runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(_ *cobra.Command, args []string) {
	stream := args[0]
	consumerName := args[1]

	if stream != "campaigns" {
		log.Fatalf("Unknown stream: %s", stream)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx)
	if err != nil {
		log.Fatalf("Failed to build dependencies: %v", err)
	}
	defer d.close()

	d.monitor.Start(ctx)

	consumer := queue.NewSubmissionConsumer(d.rdb, d.orchestrator, consumerName, d.log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("Starting consumer %s on stream %s", consumerName, queue.StreamName)
		if err := consumer.Run(ctx); err != nil {
			log.Fatalf("Consumer failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	d.monitor.Stop()
	d.orchestrator.Shutdown(shutdownCtx)

	log.Println("Consumer stopped")
}
