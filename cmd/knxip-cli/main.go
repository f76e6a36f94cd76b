// Command knxip-cli is a small command line client for a KNXnet/IP
// tunnelling gateway: it discovers a gateway (or connects to one given
// explicitly), then reads or writes a single group address.
//
// For library usage, see the root package documentation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/knxip"
	"github.com/nerrad567/knxip/internal/config"
	"github.com/nerrad567/knxip/internal/logging"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	fmt.Printf("knxip-cli %s (%s)\n", version, commit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		configPath = flag.String("config", "", "path to YAML config file (optional)")
		gateway    = flag.String("gateway", "", "gateway address host:port (overrides config/discovery)")
		addr       = flag.String("addr", "", "group address to act on, e.g. 1/2/3")
		write      = flag.String("write", "", "hex-encoded bytes to write, e.g. 01")
		read       = flag.Bool("read", false, "send a group read and print the response")
	)
	flag.Parse()

	cfg := defaultCLIConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if *gateway != "" {
		cfg.Gateway.Address = *gateway
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})

	gatewayAddr := cfg.Gateway.Address
	if gatewayAddr == "" {
		if !cfg.Discovery.Enabled {
			return fmt.Errorf("no gateway address given and discovery is disabled")
		}
		logger.Info("discovering gateway")
		gw, err := knxip.Search(ctx, cfg.DiscoveryTimeout())
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		gatewayAddr = fmt.Sprintf("%s:%d", gw.ControlEndpoint.IP, gw.ControlEndpoint.Port)
		logger.Info("gateway found", "address", gatewayAddr)
	}

	tunnel := knxip.NewTunnel(knxip.TunnelConfig{
		Gateway:           gatewayAddr,
		Logger:            logger,
		ConnectTimeout:    cfg.ConnectTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		HeartbeatTimeout:  cfg.HeartbeatTimeout(),
		HeartbeatRetries:  cfg.Gateway.HeartbeatRetries,
		AckTimeout:        cfg.AckTimeout(),
	})

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := tunnel.Connect(connectCtx); err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	defer tunnel.Disconnect()

	if *addr == "" {
		fmt.Println("Connected. Pass -addr and -read or -write to exchange a telegram.")
		<-ctx.Done()
		return nil
	}

	ga, err := knxip.ParseGroupAddress(*addr)
	if err != nil {
		return fmt.Errorf("parsing group address: %w", err)
	}

	switch {
	case *write != "":
		data, err := decodeHex(*write)
		if err != nil {
			return fmt.Errorf("parsing -write value: %w", err)
		}
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tunnel.GroupWrite(opCtx, ga, data); err != nil {
			return fmt.Errorf("group write: %w", err)
		}
		fmt.Printf("wrote %x to %s\n", data, ga)

	case *read:
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		data, err := tunnel.GroupRead(opCtx, ga, false)
		if err != nil {
			return fmt.Errorf("group read: %w", err)
		}
		fmt.Printf("%s = %x\n", ga, data)

	default:
		fmt.Println("pass -read or -write")
	}

	return nil
}

func defaultCLIConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewaySettings{
			ConnectTimeout:    10,
			HeartbeatInterval: 60,
			HeartbeatTimeout:  10,
			HeartbeatRetries:  3,
			AckTimeout:        1,
		},
		Discovery: config.DiscoverySettings{Enabled: true, Timeout: 5},
		Logging:   config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var v byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &v); err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[i*2:i*2+2], err)
		}
		out[i] = v
	}
	return out, nil
}
