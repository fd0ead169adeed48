// Package main provides the remote control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/moodbox/internal/api/connect"
)

var (
	app    = kingpin.New("moodbox-remote", "moodbox player remote control")
	server = app.Flag("server", "Player address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set CONTROL_TOKEN env)").Envar("CONTROL_TOKEN").String()

	statusCmd = app.Command("status", "Show player status")

	nextCmd    = app.Command("next", "Skip to the next track").Alias("skip")
	prevCmd    = app.Command("prev", "Go back to the previous track")
	likeCmd    = app.Command("like", "Like the current track")
	dislikeCmd = app.Command("dislike", "Dislike the current track and move on")
	pauseCmd   = app.Command("pause", "Pause playback")
	resumeCmd  = app.Command("resume", "Resume playback")

	seekCmd     = app.Command("seek", "Seek within the current track")
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	watchCmd = app.Command("watch", "Watch player notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check control token
	if *token == "" {
		fmt.Println("Error: control token is required (use --token or CONTROL_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status(ctx, client)
	case nextCmd.FullCommand(), prevCmd.FullCommand(), likeCmd.FullCommand(),
		dislikeCmd.FullCommand(), pauseCmd.FullCommand(), resumeCmd.FullCommand():
		action(ctx, client, command)
	case seekCmd.FullCommand():
		seek(ctx, client, *seekSeconds)
	case watchCmd.FullCommand():
		watch(client)
	}
}

func status(ctx context.Context, client *apiconnect.Client) {
	msg, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== PLAYER STATUS ===")
	printStatus(msg.GetFields()["status"].GetStructValue())
	fmt.Println()
}

func action(ctx context.Context, client *apiconnect.Client, name string) {
	msg, err := client.Do(ctx, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printResult(name, msg)
}

func seek(ctx context.Context, client *apiconnect.Client, seconds float64) {
	msg, err := client.Seek(ctx, seconds)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printResult("seek", msg)
}

func watch(client *apiconnect.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	fmt.Println("Watching player. Press Ctrl+C to exit.")

	err := client.Watch(ctx, func(n *structpb.Struct) error {
		printNotification(n)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printResult(name string, msg *structpb.Struct) {
	fields := msg.GetFields()
	if fields["success"].GetBoolValue() {
		fmt.Printf("OK: %s\n", name)
	} else {
		fmt.Printf("Rejected [%s]: %s\n", fields["code"].GetStringValue(), fields["message"].GetStringValue())
	}
	printNowPlaying(fields["status"].GetStructValue())
}

func printNotification(n *structpb.Struct) {
	fields := n.GetFields()

	fmt.Printf("\n[Sequence: %.0f] === %s ===\n",
		fields["sequence_no"].GetNumberValue(),
		strings.ToUpper(strings.ReplaceAll(fields["type"].GetStringValue(), "_", " ")))

	if msg := fields["message"].GetStringValue(); msg != "" {
		fmt.Printf("  Message: %s\n", msg)
	}
	if count := fields["count"]; count != nil {
		fmt.Printf("  Added: %.0f tracks (%s)\n", count.GetNumberValue(), fields["intent"].GetStringValue())
	}
	printNowPlaying(fields["status"].GetStructValue())
}

func printStatus(s *structpb.Struct) {
	if s == nil {
		fmt.Println("No status available")
		return
	}
	f := s.GetFields()
	fmt.Printf("Session ID: %s\n", f["session_id"].GetStringValue())
	fmt.Printf("Mood: %s (%s)\n", f["mood_label"].GetStringValue(), f["source"].GetStringValue())
	fmt.Printf("State: %s\n", f["state"].GetStringValue())
	fmt.Printf("Position: %.0f / %.0f\n", f["position"].GetNumberValue()+1, f["queue_length"].GetNumberValue())
	if fb := f["feedback"].GetStringValue(); fb != "" {
		fmt.Printf("Feedback: %s\n", fb)
	}
	printNowPlaying(s)
}

func printNowPlaying(s *structpb.Struct) {
	if s == nil {
		return
	}
	f := s.GetFields()

	t := f["track"].GetStructValue()
	if t == nil {
		if f["loading"].GetBoolValue() {
			fmt.Println("  Loading track...")
		}
		return
	}
	tf := t.GetFields()

	artists := make([]string, 0)
	for _, a := range tf["artists"].GetListValue().GetValues() {
		artists = append(artists, a.GetStringValue())
	}

	state := "Playing"
	if f["paused"].GetBoolValue() {
		state = "Paused"
	}
	fmt.Printf("  %s: %s - %s [%s / %s]\n", state,
		tf["name"].GetStringValue(), strings.Join(artists, ", "),
		formatSeconds(f["elapsed_seconds"].GetNumberValue()),
		formatSeconds(f["duration_seconds"].GetNumberValue()))
	fmt.Printf("  URL: %s\n", tf["url"].GetStringValue())
}

func formatSeconds(s float64) string {
	d := time.Duration(s) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
