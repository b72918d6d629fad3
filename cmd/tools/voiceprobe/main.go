package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/advisor-console/internal/config"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/voice"
)

// voiceprobe opens one agent conversation and prints what is said until the
// duration elapses or the agent hangs up.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	agentID := flag.String("agent", cfg.Voice.AgentID, "voice agent id")
	url := flag.String("url", cfg.Voice.URL, "voice agent WebSocket endpoint")
	duration := flag.Duration("duration", 30*time.Second, "how long to stay on the call")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := voice.NewWebSocketSession(*url, cfg.Voice.APIKey, voice.DefaultConnectionOptions())
	hungUp := make(chan struct{})

	err = session.Start(ctx, *agentID, voice.Callbacks{
		OnConnect: func(conversationID string) {
			log.Printf("connected: conversation=%s", conversationID)
		},
		OnDisconnect: func() {
			close(hungUp)
		},
		OnMessage: func(t voicemodel.Transcript) {
			fmt.Printf("[%s] %s\n", t.Source, t.Message)
		},
		OnError: func(err error) {
			log.Printf("voice error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("failed to start call: %v", err)
	}

	log.Printf("call started: agent=%s duration=%s", *agentID, *duration)

	select {
	case <-hungUp:
		log.Println("agent ended the call")
		return
	case <-ctx.Done():
	case <-time.After(*duration):
	}

	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.End(endCtx); err != nil {
		log.Printf("failed to end call: %v", err)
	}
	log.Printf("call ended: status=%s", session.Status())
}
