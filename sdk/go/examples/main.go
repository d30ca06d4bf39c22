// Command examples submits a trending scrape task to a running kolagentd and
// waits for the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"KOL-Agent/sdk/go/kolagent"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "kolagentd base URL")
	platform := flag.String("platform", "all", "platform to scrape")
	flag.Parse()

	client, err := kolagent.NewClient(*addr, nil)
	if err != nil {
		log.Fatal(err)
	}
	client.SetAccessToken(os.Getenv("KOL_AGENT_TOKEN"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	task, err := client.SubmitTask(ctx, kolagent.TaskSubmission{
		Tool:      "scrape_trending_tokens",
		Arguments: map[string]any{"platform": *platform, "limit": 50},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", task.ID, task.Status)

	done, err := client.WaitForTask(ctx, task.ID, time.Second)
	if err != nil {
		log.Fatal(err)
	}
	if done.Status != kolagent.StatusSucceeded {
		log.Fatalf("task %s failed: %s", done.ID, done.LastError)
	}
	fmt.Printf("result: %s\n", done.Result)
}
