// Package main writes a local CA, a server certificate and one client
// certificate per actor into a directory, ready for the server's -tls-*
// flags and the admin tool's -cert/-tls-key/-ca flags.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/estakaadi/internal/certgen"
)

func main() {
	var (
		dir    string
		hosts  string
		actors string
	)
	flag.StringVar(&dir, "dir", "certs", "output directory")
	flag.StringVar(&hosts, "hosts", "localhost,127.0.0.1", "comma separated server host names")
	flag.StringVar(&actors, "actors", "admin", "comma separated actor names to issue client certificates for")
	flag.Parse()

	if err := run(dir, split(hosts), split(actors)); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Certificates generated into %s\n", dir)
}

func run(dir string, hosts, actors []string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// Reuse an existing CA so earlier client certificates stay valid.
	caCert, caKey := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	ca, err := certgen.LoadCA(caCert, caKey)
	if err != nil {
		if ca, err = certgen.NewCA("Estakaadi Planner CA"); err != nil {
			return err
		}
		if err := ca.Write(caCert, caKey); err != nil {
			return err
		}
	}

	server, err := certgen.IssueServer(ca, hosts...)
	if err != nil {
		return err
	}
	if err := server.Write(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")); err != nil {
		return err
	}

	for _, actor := range actors {
		pair, err := certgen.IssueActor(ca, actor)
		if err != nil {
			return fmt.Errorf("issue %s: %w", actor, err)
		}
		if err := pair.Write(filepath.Join(dir, actor+".crt"), filepath.Join(dir, actor+".key")); err != nil {
			return err
		}
	}
	return nil
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
