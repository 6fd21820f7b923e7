// notifyctl is an operator tool against the shared store: publish a
// domain event, list registered devices, or prune expired events. It
// acts as an ephemeral, unregistered device; the daemon on each machine
// still delivers anything it publishes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"leadnotify/internal/bus"
	"leadnotify/internal/config"
	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	log := logx.NewConsole("WARN")
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		fatal("load config:", err)
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		fatal("config:", err)
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		fatal("open store:", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd := args[0]; cmd {
	case "publish":
		err = runPublish(ctx, st, cfg, args[1:])
	case "devices":
		err = runDevices(ctx, st)
	case "sweep":
		err = runSweep(ctx, st)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(args[0]+":", err)
	}
}

func runPublish(ctx context.Context, st store.Store, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	kind := fs.String("kind", "custom", "event kind")
	title := fs.String("title", "", "notification title")
	body := fs.String("body", "", "notification body")
	payload := fs.String("payload", "", "opaque JSON payload")
	_ = fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("-title is required")
	}
	if *payload != "" && !json.Valid([]byte(*payload)) {
		return fmt.Errorf("-payload must be valid JSON")
	}

	ttl, err := config.ParseDurationOrDefault("bus.ttl", cfg.Bus.TTL, 24*time.Hour)
	if err != nil {
		return err
	}
	b := bus.New(st, bus.Config{Window: cfg.Bus.Window, TTL: ttl}, logx.Nop())

	id, err := b.Publish(ctx, store.NotificationEvent{
		Kind:        *kind,
		Title:       *title,
		Body:        *body,
		Payload:     json.RawMessage(*payload),
		SenderToken: "ctl-" + uuid.NewString(),
	})
	if err != nil {
		return err
	}
	fmt.Println("published event", id)
	return nil
}

func runDevices(ctx context.Context, st store.Store) error {
	devices, err := st.ListActiveDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no active devices")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%s\tuser=%s\tcapability=%s\tlast_seen=%s\n",
			d.Token, d.UserID, d.Capability, d.LastSeen.Format(time.RFC3339))
	}
	return nil
}

func runSweep(ctx context.Context, st store.Store) error {
	n, err := st.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Println("removed", n, "expired events")
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: notifyctl [-config path] <publish|devices|sweep> [flags]")
}

func fatal(prefix string, err error) {
	fmt.Fprintln(os.Stderr, "notifyctl:", prefix, err)
	os.Exit(1)
}
