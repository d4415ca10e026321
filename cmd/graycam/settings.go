package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/graycam/internal/infrastructure/config"
)

// errUsage is returned for malformed settings invocations.
var errUsage = errors.New("usage: graycam settings [-config path] [-namespace ns] list|get KEY|set KEY VALUE|delete KEY")

// runSettings edits the settings store without starting the bridge, e.g. to
// provision MQTT_URL on a fresh device.
func runSettings(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", getConfigPath(), "configuration file")
	namespace := fs.String("namespace", "", "settings namespace (default from config)")
	all := fs.Bool("all", false, "list every namespace")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *namespace != "" {
		cfg.Settings.Namespace = *namespace
	}

	db, store, err := openSettings(ctx, cfg.Settings)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Read-mostly CLI; nothing to recover

	cmd, rest := rest[0], rest[1:]
	switch {
	case cmd == "list" && len(rest) == 0:
		list := store.List
		if *all {
			list = store.ListAll
		}
		entries, err := list(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAMESPACE\tKEY\tVALUE\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Namespace, e.Key, e.Value, e.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	case cmd == "get" && len(rest) == 1:
		v, err := store.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil

	case cmd == "set" && len(rest) == 2:
		if err := store.Set(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s/%s updated\n", store.Namespace(), rest[0])
		return nil

	case cmd == "delete" && len(rest) == 1:
		if err := store.Delete(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s/%s deleted\n", store.Namespace(), rest[0])
		return nil

	default:
		return errUsage
	}
}
