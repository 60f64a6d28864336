package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/chat"
	"github.com/orchestra-mcp/socketclient/src/client"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	chatID := flag.Int64("chat", 1, "chat to join")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	mgr := client.New(cfg, client.WithLogger(logger))
	svc := chat.New(mgr, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr.OnError(func(err error) {
		logger.Error().Err(err).Msg("socket error")
	})
	mgr.OnStateChange(func(from, to client.State) {
		if to == client.StateConnected {
			// With resubscribe on, the manager replays the chat itself.
			if !cfg.Resubscribe || len(mgr.SubscribedChannels()) == 0 {
				svc.SubscribeToChat(*chatID)
				svc.LoadMessages(*chatID)
			}
		}
		if to == client.StateExhausted {
			stop()
		}
	})

	svc.OnMessageSent(func(m chat.ChatMessage) {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.UserName, m.Message)
	})
	svc.OnUserTyping(func(t chat.UserTyping) {
		if t.IsTyping {
			fmt.Printf("%s is typing...\n", t.UserName)
		}
	})
	svc.OnMessagesLoad(func(history chat.MessagesLoad) {
		for _, m := range history {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.UserName, m.Message)
		}
	})

	if err := svc.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}
	defer svc.Disconnect()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line = strings.TrimSpace(line); line != "" {
				svc.SendMessage(*chatID, line)
			}
		}
	}
}
