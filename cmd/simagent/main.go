// Command simagent emulates a network agent for development and demos. It
// declares a small canned topology to the engine, streams synthetic
// telemetry over the bus, and executes control commands against its local
// simulation state.
//
// # Usage
//
//	simagent --server http://localhost:8080 --redis redis://localhost:6379/0
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/twinlab/nettwin/internal/bus"
	"github.com/twinlab/nettwin/pkg/types"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "Engine base URL")
		redisURL  = flag.String("redis", "redis://localhost:6379/0", "Redis URL")
		token     = flag.String("token", "", "Agent bearer token")
		interval  = flag.Duration("interval", 2*time.Second, "Telemetry interval")
		debug     = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	msgBus, err := bus.New(*redisURL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer msgBus.Close()

	agent := newAgent(*serverURL, *token, msgBus, logger)

	if err := agent.declareTopology(context.Background()); err != nil {
		logger.Error("failed to declare topology", "error", err)
		os.Exit(1)
	}

	msgBus.SubscribeCommands(agent.execute)

	stopCh := make(chan struct{})
	go agent.telemetryLoop(stopCh, *interval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopCh)
	logger.Info("simagent stopped")
}

// simLink is one simulated link's live condition.
type simLink struct {
	node1    string
	node2    string
	capacity float64
	delayMS  float64
	lossPct  float64
	up       bool
}

// agent holds the simulation state the commands act on.
type agent struct {
	serverURL string
	token     string
	bus       *bus.Bus
	logger    *slog.Logger
	client    *http.Client

	mu      sync.Mutex
	devices map[string]bool // name -> up
	links   map[string]*simLink
	topo    types.TopologySpec
}

func newAgent(serverURL, token string, msgBus *bus.Bus, logger *slog.Logger) *agent {
	a := &agent{
		serverURL: strings.TrimRight(serverURL, "/"),
		token:     token,
		bus:       msgBus,
		logger:    logger.With("component", "simagent"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	a.loadTopology(cannedTopology())
	return a
}

// cannedTopology is the default lab network: four hosts across two switches.
func cannedTopology() types.TopologySpec {
	return types.TopologySpec{
		Hosts: []types.TopologyHost{
			{Name: "h1", IP: "10.0.0.1", MAC: "00:00:00:00:00:01"},
			{Name: "h2", IP: "10.0.0.2", MAC: "00:00:00:00:00:02"},
			{Name: "h3", IP: "10.0.0.3", MAC: "00:00:00:00:00:03"},
			{Name: "h4", IP: "10.0.0.4", MAC: "00:00:00:00:00:04"},
		},
		Switches: []types.TopologySwitch{
			{Name: "s1", DPID: "0000000000000001"},
			{Name: "s2", DPID: "0000000000000002"},
		},
		Links: []types.TopologyLink{
			{Node1: "h1", Node2: "s1", BW: 100},
			{Node1: "h2", Node2: "s1", BW: 100},
			{Node1: "h3", Node2: "s2", BW: 100},
			{Node1: "h4", Node2: "s2", BW: 100},
			{Node1: "s1", Node2: "s2", BW: 1000},
		},
	}
}

func (a *agent) loadTopology(spec types.TopologySpec) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.topo = spec
	a.devices = make(map[string]bool)
	a.links = make(map[string]*simLink)
	for _, h := range spec.Hosts {
		a.devices[h.Name] = true
	}
	for _, s := range spec.Switches {
		a.devices[s.Name] = true
	}
	for _, l := range spec.Links {
		n1, n2 := l.Endpoints()
		a.links[linkID(n1, n2)] = &simLink{
			node1:    n1,
			node2:    n2,
			capacity: l.Capacity(),
			delayMS:  1,
			up:       true,
		}
	}
}

func linkID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

// declareTopology registers the simulated network with the engine.
func (a *agent) declareTopology(ctx context.Context) error {
	a.mu.Lock()
	body, err := json.Marshal(a.topo)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.serverURL+"/api/init/topology", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("init topology: unexpected status %d", resp.StatusCode)
	}

	a.logger.Info("topology declared")
	return nil
}

// telemetryLoop publishes one synthetic batch per interval. The limiter
// keeps the cadence even when a slow publish eats into the budget.
func (a *agent) telemetryLoop(stopCh <-chan struct{}, interval time.Duration) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		batch := a.buildBatch()
		if err := a.bus.PublishTelemetry(ctx, batch); err != nil {
			a.logger.Warn("telemetry publish failed", "error", err)
		}
	}
}

// buildBatch synthesizes plausible metrics: a random walk of CPU and
// throughput, zeros for anything toggled off.
func (a *agent) buildBatch() types.TelemetryBatch {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := types.TelemetryBatch{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}

	for _, h := range a.topo.Hosts {
		if !a.devices[h.Name] {
			continue // a downed host reports nothing
		}
		batch.Hosts = append(batch.Hosts, types.HostMetric{
			Name: h.Name,
			CPU:  clamp(20+rand.Float64()*40, 0, 100),
			Mem:  clamp(30+rand.Float64()*20, 0, 100),
		})
	}

	for _, s := range a.topo.Switches {
		if !a.devices[s.Name] {
			continue
		}
		batch.Switches = append(batch.Switches, types.SwitchEntry{Name: s.Name})
	}

	for id, l := range a.links {
		if !l.up || !a.devices[l.node1] || !a.devices[l.node2] {
			batch.Links = append(batch.Links, types.LinkMetric{ID: id, BW: 0})
			continue
		}
		batch.Links = append(batch.Links, types.LinkMetric{
			ID:      id,
			BW:      clamp(l.capacity*(0.2+rand.Float64()*0.6), 0, l.capacity),
			Latency: l.delayMS + rand.Float64(),
			Jitter:  rand.Float64() * 0.5,
			Loss:    l.lossPct,
		})
	}

	return batch
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// execute runs one control command against the simulation state and
// publishes the result.
func (a *agent) execute(msg types.CommandMessage) {
	a.logger.Info("executing command",
		"action_id", msg.ActionID,
		"command", msg.Command)

	var err error
	var message string
	switch msg.Command {
	case types.CommandToggleDevice:
		message, err = a.toggleDevice(msg.Data)
	case types.CommandToggleLink:
		message, err = a.toggleLink(msg.Data)
	case types.CommandUpdateLink:
		message, err = a.updateLink(msg.Data)
	case types.CommandReloadTopology:
		message, err = a.reloadTopology(msg.Data)
	default:
		err = fmt.Errorf("unknown command %q", msg.Command)
	}

	res := types.CommandResult{
		ActionID: msg.ActionID,
		Command:  msg.Command,
		Success:  err == nil,
		Message:  message,
	}
	if err != nil {
		res.Error = err.Error()
	}
	if perr := a.bus.PublishResult(context.Background(), res); perr != nil {
		a.logger.Error("result publish failed", "action_id", msg.ActionID, "error", perr)
	}
}

func (a *agent) toggleDevice(data map[string]any) (string, error) {
	name, _ := data["device"].(string)

	a.mu.Lock()
	defer a.mu.Unlock()
	up, ok := a.devices[name]
	if !ok {
		return "", fmt.Errorf("no such device %q", name)
	}
	next := !up
	switch data["action"] {
	case "enable":
		next = true
	case "disable":
		next = false
	}
	a.devices[name] = next
	if next {
		return name + " started", nil
	}
	return name + " stopped", nil
}

func (a *agent) toggleLink(data map[string]any) (string, error) {
	id, _ := data["link"].(string)

	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.links[id]
	if !ok {
		return "", fmt.Errorf("no such link %q", id)
	}
	next := !l.up
	switch data["action"] {
	case "up":
		next = true
	case "down":
		next = false
	}
	l.up = next
	if next {
		return id + " up", nil
	}
	return id + " down", nil
}

func (a *agent) updateLink(data map[string]any) (string, error) {
	id, _ := data["link"].(string)

	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.links[id]
	if !ok {
		return "", fmt.Errorf("no such link %q", id)
	}
	if bw, ok := data["bandwidth"].(float64); ok {
		l.capacity = bw
	}
	if delay, ok := data["delay"].(string); ok {
		l.delayMS = parseDelayMS(delay)
	}
	if loss, ok := data["loss"].(float64); ok {
		l.lossPct = loss
	}
	return id + " conditions updated", nil
}

// parseDelayMS converts the shaper delay syntax ("10ms", "0.5s", "200us")
// to milliseconds. The engine validated the format before dispatch.
func parseDelayMS(delay string) float64 {
	var value float64
	var unit string
	if _, err := fmt.Sscanf(delay, "%f%s", &value, &unit); err != nil {
		return 0
	}
	switch unit {
	case "s":
		return value * 1000
	case "us":
		return value / 1000
	default:
		return value
	}
}

func (a *agent) reloadTopology(data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var spec types.TopologySpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return "", fmt.Errorf("invalid topology payload: %w", err)
	}

	a.loadTopology(spec)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.declareTopology(ctx); err != nil {
		return "", err
	}
	return "topology reloaded", nil
}
