package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trackmesh/node"
	"trackmesh/pkg/catalog"
	"trackmesh/pkg/config"
	"trackmesh/pkg/logger"
	"trackmesh/pkg/monitor"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

var (
	listenAddr      string
	dataDir         string
	configPath      string
	mdnsEnabled     bool
	peerTTL         time.Duration
	fileToAdd       string
	peerToConnect   string
	nodeInteractive bool
	metricsInterval time.Duration
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Start a mesh node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		n, err := node.New(cfg)
		if err != nil {
			return err
		}

		logger.Sugar.Infof("Starting node %s on %s (data: %s)", n.ID(), cfg.ListenAddr, cfg.DataDir)
		if err := n.Start(); err != nil {
			return err
		}

		if metricsInterval > 0 {
			go monitor.LogPeriodic(metricsInterval)
		}

		if fileToAdd != "" {
			if track, err := n.AddFile(fileToAdd, catalog.TrackMeta{}); err != nil {
				logger.Sugar.Errorf("Failed to add %s: %v", fileToAdd, err)
			} else {
				logger.Sugar.Infof("Added %s as %s", fileToAdd, track.ContentHash)
			}
		}

		if peerToConnect != "" {
			host, port, err := splitHostPort(peerToConnect)
			if err != nil {
				logger.Sugar.Errorf("Bad --connect address: %v", err)
			} else if _, err := n.ConnectToPeer(cmd.Context(), host, port); err != nil {
				logger.Sugar.Errorf("Failed to connect to %s: %v", peerToConnect, err)
			}
		}

		if nodeInteractive {
			fmt.Println("TrackMesh Node Interactive Shell")
			fmt.Println("Type 'help' for commands.")

			prompt.New(
				func(in string) { nodeExecutor(in, n) },
				nodeCompleter,
				prompt.OptionPrefix("mesh> "),
				prompt.OptionTitle("TrackMesh Node"),
			).Run()
			return nil
		}

		select {}
	},
}

func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	// Flags set explicitly win over file and environment.
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = listenAddr
	}
	if cmd.Flags().Changed("data") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("mdns") {
		cfg.MDNSEnabled = mdnsEnabled
	}
	if cmd.Flags().Changed("peer-ttl") {
		cfg.PeerTTL = peerTTL
	}
	return cfg, nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad port in %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}

func nodeExecutor(in string, n *node.Node) {
	in = strings.TrimSpace(in)
	blocks := strings.Fields(in)
	if len(blocks) == 0 {
		return
	}

	ctx := context.Background()

	switch blocks[0] {
	case "exit", "quit":
		fmt.Println("Stopping node...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := n.Stop(shutdownCtx); err != nil {
			fmt.Printf("Error stopping node: %v\n", err)
		}
		os.Exit(0)
	case "status":
		fmt.Println(renderStatus(n.GetStatus()))
	case "add":
		if len(blocks) < 2 {
			fmt.Println("Usage: add <file_path> [title] [artist] [album]")
			return
		}
		meta := catalog.TrackMeta{}
		if len(blocks) > 2 {
			meta.Title = blocks[2]
		}
		if len(blocks) > 3 {
			meta.Artist = blocks[3]
		}
		if len(blocks) > 4 {
			meta.Album = blocks[4]
		}
		track, err := n.AddFile(blocks[1], meta)
		if err != nil {
			fmt.Printf("Error adding file: %v\n", err)
			return
		}
		fmt.Printf("Added %q -> %s\n", track.Title, track.ContentHash)
	case "connect":
		if len(blocks) < 2 {
			fmt.Println("Usage: connect <host:port>")
			return
		}
		host, port, err := splitHostPort(blocks[1])
		if err != nil {
			fmt.Printf("Bad address: %v\n", err)
			return
		}
		peer, err := n.ConnectToPeer(ctx, host, port)
		if err != nil {
			fmt.Printf("Error connecting: %v\n", err)
			return
		}
		fmt.Printf("Connected to peer %s (%d tracks advertised)\n", peer.ID, peer.ContentCount())
	case "scan":
		scanCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		found, err := n.DiscoverLAN(scanCtx)
		if err != nil {
			fmt.Printf("Error scanning LAN: %v\n", err)
			return
		}
		fmt.Printf("Connected to %d LAN peers\n", found)
	case "find":
		if len(blocks) < 2 {
			fmt.Println("Usage: find <content_hash>")
			return
		}
		loc, err := n.FindContent(blocks[1])
		if err != nil {
			fmt.Printf("Not found: %v\n", err)
			return
		}
		if loc.Local {
			fmt.Println("Available locally.")
		} else {
			fmt.Printf("Available at peer %s\n", loc.PeerID)
		}
	case "fetch":
		if len(blocks) < 2 {
			fmt.Println("Usage: fetch <content_hash>")
			return
		}
		data, err := n.Fetch(ctx, blocks[1])
		if err != nil {
			fmt.Printf("Error fetching: %v\n", err)
			return
		}
		fmt.Printf("Fetched %d bytes; content is now served locally.\n", len(data))
	case "tracks":
		fmt.Println(renderTracks(n.Tracks()))
	case "peers":
		fmt.Println(renderPeers(n.Peers()))
	case "prune":
		age := 10 * time.Minute
		if len(blocks) > 1 {
			parsed, err := time.ParseDuration(blocks[1])
			if err != nil {
				fmt.Printf("Bad duration: %v\n", err)
				return
			}
			age = parsed
		}
		fmt.Printf("Pruned %d stale peers\n", n.PruneStalePeers(age))
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  status                 - Show node status")
		fmt.Println("  add <path> [meta...]   - Ingest and serve a local file")
		fmt.Println("  connect <host:port>    - Handshake with a remote node")
		fmt.Println("  scan                   - Discover nodes on the LAN")
		fmt.Println("  find <hash>            - Locate content in the mesh")
		fmt.Println("  fetch <hash>           - Download content from a peer")
		fmt.Println("  tracks                 - List the local catalog")
		fmt.Println("  peers                  - List known peers")
		fmt.Println("  prune [age]            - Evict peers not seen within age")
		fmt.Println("  exit                   - Stop node and exit")
	default:
		fmt.Println("Unknown command: " + blocks[0])
	}
}

func nodeCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "status", Description: "Show node status"},
		{Text: "add", Description: "Ingest and serve a local file"},
		{Text: "connect", Description: "Handshake with a remote node"},
		{Text: "scan", Description: "Discover nodes on the LAN"},
		{Text: "find", Description: "Locate content in the mesh"},
		{Text: "fetch", Description: "Download content from a peer"},
		{Text: "tracks", Description: "List the local catalog"},
		{Text: "peers", Description: "List known peers"},
		{Text: "prune", Description: "Evict stale peers"},
		{Text: "exit", Description: "Stop the node"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&listenAddr, "addr", "a", "127.0.0.1:9001", "Address for this node to listen on")
	nodeCmd.Flags().StringVarP(&dataDir, "data", "d", "./data", "Content store directory")
	nodeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file")
	nodeCmd.Flags().BoolVarP(&mdnsEnabled, "mdns", "m", false, "Announce and browse on the local network")
	nodeCmd.Flags().DurationVar(&peerTTL, "peer-ttl", 0, "Evict peers not seen within this duration (0 disables)")
	nodeCmd.Flags().StringVar(&fileToAdd, "add", "", "Path to a file to ingest immediately")
	nodeCmd.Flags().StringVar(&peerToConnect, "connect", "", "host:port of a node to handshake with immediately")
	nodeCmd.Flags().BoolVarP(&nodeInteractive, "interactive", "i", false, "Start in interactive mode")
	nodeCmd.Flags().DurationVar(&metricsInterval, "metrics-interval", 0, "Log runtime metrics at this interval (0 disables)")
}
