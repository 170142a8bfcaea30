// Package mqtt publishes solar event summaries to an MQTT broker so home
// automation systems can react to sunrise and sunset without polling the API.
//
// Topics:
//
//	sunwatch/<slug>/events      retained JSON event summary per site
//	sunwatch/<slug>/visibility  "day" or "night", published on transitions
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/sites"
)

// Config holds publisher configuration loaded from environment variables.
// An empty BrokerURL disables the publisher.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	Interval  time.Duration // Publish interval (default: 60s).
}

// Publisher periodically computes per-site events and publishes them.
type Publisher struct {
	client paho.Client
	store  *sites.Store
	calc   ephemeris.Calculator
	config Config
	logger *slog.Logger

	// last published visibility per slug, for transition detection
	lastVisible map[string]bool
}

// eventPayload is the retained per-site event summary.
type eventPayload struct {
	Site        string  `json:"site"`
	Time        string  `json:"time"`
	RiseTime    string  `json:"rise_time,omitempty"`
	SetTime     string  `json:"set_time,omitempty"`
	RiseAzimuth float64 `json:"rise_azimuth,omitempty"`
	SetAzimuth  float64 `json:"set_azimuth,omitempty"`
	Visible     bool    `json:"visible"`
}

// NewPublisher creates a Publisher and connects to the broker. Returns an
// error if the initial connect fails; the paho client keeps retrying in the
// background afterwards.
func NewPublisher(config Config, store *sites.Store, calc ephemeris.Calculator, logger *slog.Logger) (*Publisher, error) {
	if config.ClientID == "" {
		config.ClientID = "sunwatch"
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetClientID(config.ClientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(2 * time.Second).
		SetConnectRetry(true)

	opts.OnConnect = func(paho.Client) {
		logger.Info("mqtt connected", "broker", config.BrokerURL)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	client := paho.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", tok.Error())
	}

	return &Publisher{
		client:      client,
		store:       store,
		calc:        calc,
		config:      config,
		logger:      logger,
		lastVisible: make(map[string]bool),
	}, nil
}

// Run publishes event summaries for every catalog site at the configured
// interval. Blocks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Publish once immediately so retained topics exist right away.
	p.publishAll(time.Now())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("mqtt publisher stopped")
			p.client.Disconnect(250)
			return
		case t := <-ticker.C:
			p.publishAll(t)
		}
	}
}

// publishAll computes and publishes the event summary for every site.
func (p *Publisher) publishAll(now time.Time) {
	catalog := p.store.Get()
	if catalog == nil {
		return
	}

	for _, site := range catalog.Sites {
		result := p.calc.Calculate(site.Latitude, site.Longitude, now)
		p.publishEvents(site, result)
		p.publishVisibility(site, result.Visible)
	}
}

// publishEvents publishes the retained event summary for one site.
func (p *Publisher) publishEvents(site sites.Site, result ephemeris.Result) {
	payload := eventPayload{
		Site:        site.Slug,
		Time:        result.QueryTime.Format(time.RFC3339),
		RiseAzimuth: result.RiseAzimuth,
		SetAzimuth:  result.SetAzimuth,
		Visible:     result.Visible,
	}
	if result.HasRise {
		payload.RiseTime = result.RiseTime.Format(time.RFC3339)
	}
	if result.HasSet {
		payload.SetTime = result.SetTime.Format(time.RFC3339)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("mqtt payload marshal failed", "site", site.Slug, "error", err)
		return
	}

	topic := eventTopic(site.Slug)
	if tok := p.client.Publish(topic, 0, true, data); tok.Wait() && tok.Error() != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", tok.Error())
		return
	}
	metrics.IncMQTTPublished("events")
}

// publishVisibility publishes day/night transitions for one site.
func (p *Publisher) publishVisibility(site sites.Site, visible bool) {
	last, seen := p.lastVisible[site.Slug]
	if seen && last == visible {
		return
	}
	p.lastVisible[site.Slug] = visible

	topic := visibilityTopic(site.Slug)
	if tok := p.client.Publish(topic, 0, true, []byte(visibilityState(visible))); tok.Wait() && tok.Error() != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", tok.Error())
		return
	}
	metrics.IncMQTTPublished("visibility")
}

func eventTopic(slug string) string {
	return "sunwatch/" + slug + "/events"
}

func visibilityTopic(slug string) string {
	return "sunwatch/" + slug + "/visibility"
}

func visibilityState(visible bool) string {
	if visible {
		return "day"
	}
	return "night"
}
