// Package app assembles the console from configuration.
package app

import (
	"log"

	"github.com/zhouzirui/advisor-console/internal/config"
	"github.com/zhouzirui/advisor-console/internal/service/backend"
	"github.com/zhouzirui/advisor-console/internal/service/console"
	"github.com/zhouzirui/advisor-console/internal/service/voice"
)

// Console bundles the controller with the backend client it uses, so one-shot
// commands can reach endpoints the controller does not expose.
type Console struct {
	Config     *config.Config
	Controller *console.Controller
	Backend    *backend.Client
}

// Close stops the controller's background work.
func (c *Console) Close() {
	c.Controller.Close()
}

// NewConsole builds the backend client, the voice session and the controller
// described by cfg.
func NewConsole(cfg *config.Config) (*Console, error) {
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	client.SetAuditKey(cfg.Backend.AuditKey)

	var session voice.Session
	if cfg.Voice.Enabled() {
		session = voice.NewWebSocketSession(cfg.Voice.URL, cfg.Voice.APIKey, voice.DefaultConnectionOptions())
	} else {
		log.Println("[app] voice agent not configured, calls are disabled")
	}

	ctrl := console.New(client, session, voice.StaticMicrophone{Granted: cfg.Voice.MicrophoneEnabled}, console.Options{
		AgentID:    cfg.Voice.AgentID,
		SessionID:  cfg.Session.ID,
		EntryLimit: cfg.Audit.EntryLimit,
	})

	if cfg.Audit.RefreshSchedule != "" {
		if err := ctrl.StartAutoRefresh(cfg.Audit.RefreshSchedule); err != nil {
			ctrl.Close()
			return nil, err
		}
	}

	return &Console{Config: cfg, Controller: ctrl, Backend: client}, nil
}
