// voxscribe-feed drives a running voxscribe hub without a recognizer: each
// line read from stdin is published as a partial transcript fragment for one
// session, and the last line is re-published as the final hypothesis on EOF.
//
// Feeding successively longer lines simulates an utterance growing through
// interim results:
//
//	printf 'hello\nhello world\n' | voxscribe-feed -session demo
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/voxlabs-io/voxscribe/internal/bus"
	"github.com/voxlabs-io/voxscribe/internal/config"
	"github.com/voxlabs-io/voxscribe/internal/protocol"
)

func main() {
	var (
		servers   string
		sessionID string
		delay     time.Duration
	)

	flag.StringVar(&servers, "servers", "nats://localhost:4222", "Comma-separated NATS server URLs")
	flag.StringVar(&sessionID, "session", "local", "Dictation session id to publish under")
	flag.DurationVar(&delay, "delay", 0, "Pause between fragments, e.g. 500ms")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	busCfg := config.BusConfig{
		Servers:        strings.Split(servers, ","),
		ConnectTimeout: 2000,
	}
	client, err := bus.Connect(context.Background(), busCfg, logger)
	if err != nil {
		logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer client.Close()

	publish := func(subject, text string, partial bool) {
		data, err := json.Marshal(protocol.Transcript{
			SessionID: sessionID,
			Text:      text,
			Partial:   partial,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			logger.Error("failed to marshal fragment", slog.String("error", err.Error()))
			return
		}
		if err := client.Conn().Publish(subject, data); err != nil {
			logger.Error("failed to publish fragment", slog.String("error", err.Error()))
		}
	}

	var last string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		publish(protocol.SubjectTranscriptPartial, line, true)
		last = line
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("failed to read stdin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if last != "" {
		publish(protocol.SubjectTranscriptFinal, last, false)
	}

	if err := client.Conn().Flush(); err != nil {
		logger.Error("failed to flush", slog.String("error", err.Error()))
	}
}
