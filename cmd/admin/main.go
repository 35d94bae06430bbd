// Package main is the planner admin tool. It drives a running server's
// export, import, statistics, audit log and backup endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/estakaadi/internal/client"
	"github.com/atinyakov/estakaadi/internal/models"
)

var (
	version   string
	buildDate string
)

func main() {
	var (
		cmd      string
		baseURL  string
		actor    string
		file     string
		key      string
		certFile string
		keyFile  string
		caFile   string
		filter   models.LogFilter
		showVer  bool
		yes      bool
	)

	flag.StringVar(&cmd, "cmd", "", "command: export | import | stats | logs | backups | restore | clear")
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&actor, "actor", os.Getenv("USER"), "who is acting, sent as X-Actor")
	flag.StringVar(&file, "file", "", "export output or import input; stdout/stdin when empty")
	flag.StringVar(&key, "key", "", "backup key for restore")
	flag.StringVar(&certFile, "cert", "", "path to client cert")
	flag.StringVar(&keyFile, "tls-key", "", "path to client key")
	flag.StringVar(&caFile, "ca", "", "path to CA cert; enables HTTPS")
	flag.StringVar(&filter.Actor, "by", "", "logs: only entries by this actor")
	flag.StringVar(&filter.Action, "action", "", "logs: only entries with this action")
	flag.IntVar(&filter.Limit, "limit", 50, "logs: maximum entries")
	flag.BoolVar(&yes, "yes", false, "clear: confirm removing all data")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Estakaadi Admin\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	c := client.New(baseURL, actor)
	if caFile != "" {
		httpClient, err := client.LoadClientCertificate(certFile, keyFile, caFile)
		if err != nil {
			log.Fatal(err)
		}
		c.HTTP = httpClient
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, c, cmd, file, key, filter, yes); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, c *client.Client, cmd, file, key string, filter models.LogFilter, yes bool) error {
	switch cmd {
	case "export":
		raw, err := c.Export(ctx)
		if err != nil {
			return err
		}
		if file == "" {
			_, err = os.Stdout.Write(raw)
			return err
		}
		if err := os.WriteFile(file, raw, 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("Exported to %s\n", file)
	case "import":
		var (
			raw []byte
			err error
		)
		if file == "" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		if err := c.Import(ctx, raw); err != nil {
			return err
		}
		fmt.Println("Import complete")
	case "stats":
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "backend\t%s\n", st.Backend)
		for _, s := range st.Sections {
			fmt.Fprintf(w, "%s\t%d items\t%s\n", s.Name, s.ItemCount, s.FormattedSize)
		}
		fmt.Fprintf(w, "total\t%d items\t%s\n", st.TotalItems, st.FormattedSize)
		fmt.Fprintf(w, "last updated\t%s\n", st.LastUpdated)
		return w.Flush()
	case "logs":
		entries, err := c.Logs(ctx, filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.Actor, e.IPAddress, e.Action, e.Details)
		}
		return w.Flush()
	case "backups":
		list, err := c.Backups(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, b := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.Key, b.CreatedAt.Format(time.RFC3339), models.FormatSize(int64(b.Size)))
		}
		return w.Flush()
	case "restore":
		if key == "" {
			return errors.New("please provide -key=<backup key>")
		}
		if err := c.Restore(ctx, key); err != nil {
			return err
		}
		fmt.Printf("Restored %s\n", key)
	case "clear":
		if !yes {
			return errors.New("clear removes all data; rerun with -yes to confirm")
		}
		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("All data cleared; a backup was kept")
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}
