// Package main provides the controller CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/mediasync/internal/api/connect"
	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/domain/message"
)

var (
	app    = kingpin.New("mediasync-ctlcli", "mediasync controller client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Bridge token (or set MEDIASYNC_TOKEN env)").Envar("MEDIASYNC_TOKEN").String()

	// play command
	playCmd = app.Command("play", "Play an element")
	playID  = playCmd.Arg("id", "Element ID").Required().String()

	// pause command
	pauseCmd = app.Command("pause", "Pause an element")
	pauseID  = pauseCmd.Arg("id", "Element ID").Required().String()

	// seek command
	seekCmd  = app.Command("seek", "Seek an element")
	seekID   = seekCmd.Arg("id", "Element ID").Required().String()
	seekTime = seekCmd.Arg("time-ms", "Target position in milliseconds").Required().Float64()

	// restart command
	restartCmd       = app.Command("restart", "Restart the loop on both elements")
	restartAudioID   = restartCmd.Flag("audio", "Audio element ID").Default("audio").String()
	restartVideoID   = restartCmd.Flag("video", "Video element ID").Default("video").String()
	restartAudioTime = restartCmd.Arg("audio-ms", "Audio loop start in milliseconds").Required().Float64()
	restartVideoTime = restartCmd.Arg("video-ms", "Video loop start in milliseconds (defaults to audio-ms)").Action(markVideoSet).Float64()

	// status command
	statusCmd = app.Command("status", "Show restart state and elements")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to outbound messages")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	var opts []connect.ClientOption
	if *token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewTokenClientInterceptor(*token)))
	}
	client := apiconnect.NewBridgeServiceClient(http.DefaultClient, *server, opts...)

	ctx := context.Background()

	// Execute command
	switch command {
	case playCmd.FullCommand():
		send(ctx, client, message.TagPlay, *playID)
	case pauseCmd.FullCommand():
		send(ctx, client, message.TagPause, *pauseID)
	case seekCmd.FullCommand():
		send(ctx, client, message.TagSeek, message.SeekData{ID: *seekID, Time: *seekTime})
	case restartCmd.FullCommand():
		send(ctx, client, message.TagRestartLoop, restartData())
	case statusCmd.FullCommand():
		status(ctx, client)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client)
	}
}

// restartVideoSet is set by markVideoSet during parsing.
var restartVideoSet bool

// markVideoSet runs only when video-ms is given on the command line.
func markVideoSet(*kingpin.ParseContext) error {
	restartVideoSet = true
	return nil
}

// restartData builds the RestartLoop payload. An omitted video-ms reuses
// audio-ms; an explicit 0 is kept.
func restartData() message.RestartLoopData {
	videoTime := *restartAudioTime
	if restartVideoSet {
		videoTime = *restartVideoTime
	}
	return message.RestartLoopData{
		Audio: message.MediaTarget{ID: *restartAudioID, Time: *restartAudioTime},
		Video: message.MediaTarget{ID: *restartVideoID, Time: videoTime},
	}
}

func send(ctx context.Context, client *apiconnect.BridgeServiceClient, tag string, data any) {
	msg, err := message.New(tag, data)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.Dispatch(ctx, connect.NewRequest(msg))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Dispatched: %s\n", resp.Msg.Tag)
}

func status(ctx context.Context, client *apiconnect.BridgeServiceClient) {
	resp, err := client.GetStatus(ctx, connect.NewRequest(&apiconnect.GetStatusRequest{}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printStatus(resp.Msg)
}

func printStatus(s *dispatch.Status) {
	fmt.Printf("Restart state: %s\n", s.State)
	fmt.Println("Elements:")
	for _, e := range s.Elements {
		state := "playing"
		if e.Paused {
			state = "paused"
		}
		if e.Seeking {
			state += ", seeking"
		}
		fmt.Printf("  %-10s %-6s %-10s %9.3fs  %s\n", e.ID, e.Kind, e.Backend, e.Position, state)
	}
}

func subscribe(ctx context.Context, client *apiconnect.BridgeServiceClient) {
	stream, err := client.Subscribe(ctx, connect.NewRequest(&apiconnect.SubscribeRequest{}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Subscribed to messages. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	// Receive messages
	for stream.Receive() {
		printMessage(stream.Msg())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printMessage(m *message.Message) {
	fmt.Printf("[Sequence: %d] %s", m.Seq, m.Tag)

	switch m.Tag {
	case message.TagStatus:
		var s dispatch.Status
		if err := json.Unmarshal(m.Data, &s); err == nil {
			fmt.Println()
			printStatus(&s)
			return
		}
	case message.TagAck:
		var a message.AckData
		if err := json.Unmarshal(m.Data, &a); err == nil {
			fmt.Printf(" %s\n", a.Tag)
			return
		}
	case message.TagDiagnostic:
		var d message.DiagnosticData
		if err := json.Unmarshal(m.Data, &d); err == nil {
			fmt.Printf(" [%s] %s %v\n", d.Level, d.Message, d.Context)
			return
		}
	}
	fmt.Printf(" %s\n", string(m.Data))
}
