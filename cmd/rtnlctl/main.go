// Command rtnlctl is a thin demonstration consumer of the client
// package: it connects to a remote transport host over QUIC, issues one
// dump-style request, and optionally stays resident printing broadcast
// events until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/vnetkit/rtnl/client"
	"github.com/vnetkit/rtnl/config"
	"github.com/vnetkit/rtnl/marshal"
	"github.com/vnetkit/rtnl/transport"
)

func main() {
	cfgPath := flag.String("config", "", "path to a rtnlctl TOML config file")
	remote := flag.String("remote", "", "remote transport host address (host:port), overrides config")
	monitor := flag.Bool("monitor", false, "stay resident and print broadcast events")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "rtnlctl"})

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *remote != "" {
		cfg.Client.Host = *remote
	}
	if cfg.Client.Host == "" {
		logger.Fatalf("no remote host configured: pass -remote or set [Client] Host in -config")
	}
	if *monitor {
		cfg.Client.Monitor = true
	}

	tr := transport.NewQUIC(cfg.Client.Host, logger.WithPrefix("transport"))
	c, err := client.New(cfg, tr, marshal.NewDefault())
	if err != nil {
		logger.Fatalf("start client: %v", err)
	}
	defer c.Release()

	if *monitor {
		c.Callbacks().Register(nil, func(msg any, args ...any) {
			if m, ok := msg.(*marshal.Message); ok {
				fmt.Printf("broadcast: type=%s sequence=%d\n", m.Header.Type.String(), m.Header.Sequence)
			}
		})
	}

	req := &marshal.Message{Header: marshal.Header{Type: marshal.KindLink, Flags: marshal.FlagRequest | marshal.FlagDump}}
	got, err := c.Request(req, 0, 0, false)
	if err != nil {
		logger.Fatalf("request: %v", err)
	}
	for _, m := range got {
		fmt.Printf("link: sequence=%d\n", m.Header.Sequence)
	}

	if !*monitor {
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
