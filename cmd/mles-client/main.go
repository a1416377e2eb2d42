// cmd/mles-client/main.go

// mles-client is an end-to-end encrypted group chat client and relay bridge.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mlesclient/internal/auth"
	"mlesclient/internal/broker"
	"mlesclient/internal/client"
	"mlesclient/internal/codec"
	"mlesclient/internal/config"
	"mlesclient/internal/logging"
	"mlesclient/internal/network"
	"mlesclient/internal/proto"
	"mlesclient/internal/relay"
)

type options struct {
	configFile  string
	server      string
	channel     string
	uid         string
	proxyServer string
	mqttBroker  string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "mles-client",
		Short: "Encrypted group chat over mles relays",
		Long: `mles-client joins an encrypted channel on an mles WebSocket relay.

Without bridge flags it runs an interactive chat session: messages are
encrypted end to end with a key derived from the channel passphrase, so the
relay only ever sees ciphertext.

With --proxy-server it bridges two relay servers, forwarding encrypted
frames unmodified in both directions with duplicate suppression. With
--mqtt-broker it bridges a relay server to an MQTT broker, publishing
frames to the topic named after the channel.`,
		Example: `
  # Interactive chat
  mles-client --channel lobby --uid alice

  # Bridge two relay servers
  mles-client --channel lobby --uid bridge1 --proxy-server wss://relay2.example

  # Bridge a relay server to an MQTT broker
  mles-client --channel lobby --uid bridge1 --mqtt-broker mqtt://broker.example`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "path to TOML config file")
	cmd.Flags().StringVarP(&opts.server, "server", "s", config.DefaultServer, "WebSocket relay server URL")
	cmd.Flags().StringVarP(&opts.channel, "channel", "c", "", "channel name")
	cmd.Flags().StringVarP(&opts.uid, "uid", "u", "", "user ID")
	cmd.Flags().StringVar(&opts.proxyServer, "proxy-server", "", "second relay server URL for bridge mode")
	cmd.Flags().StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker URL for broker bridge mode")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// mergeConfig loads the optional config file and lets explicitly set flags
// win over it.
func mergeConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("server") {
		cfg.Server = opts.server
	}
	if opts.channel != "" {
		cfg.Channel = opts.channel
	}
	if opts.uid != "" {
		cfg.UID = opts.uid
	}
	if opts.proxyServer != "" {
		cfg.ProxyServer = opts.proxyServer
	}
	if opts.mqttBroker != "" {
		cfg.MQTTBroker = opts.mqttBroker
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := mergeConfig(cmd, opts)
	if err != nil {
		return err
	}
	backend, err := logging.New(cfg.LogFile, cfg.LogLevel, false)
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	if cfg.UID == "" {
		if cfg.UID, err = promptLine(stdin, "UID: "); err != nil {
			return err
		}
	}
	if cfg.Channel == "" {
		if cfg.Channel, err = promptLine(stdin, "Channel: "); err != nil {
			return err
		}
	}

	hello := proto.Hello{
		UID:     cfg.UID,
		Channel: cfg.Channel,
		Auth:    auth.Token(cfg.UID, cfg.Channel, auth.SecretFromEnv()),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case cfg.MQTTBroker != "":
		return runBrokerBridge(ctx, cfg, hello, backend)
	case cfg.ProxyServer != "":
		return runBridge(ctx, cfg, hello, backend)
	default:
		return runClient(ctx, cfg, hello, backend, stdin)
	}
}

func runBridge(ctx context.Context, cfg *config.Config, hello proto.Hello, backend *logging.Backend) error {
	log := backend.GetLogger("bridge")
	a, err := network.Dial(ctx, cfg.Server)
	if err != nil {
		return err
	}
	b, err := network.Dial(ctx, cfg.ProxyServer)
	if err != nil {
		a.Close()
		return err
	}
	return relay.NewBridge(a, b, cfg.Server, cfg.ProxyServer, hello, log).Run(ctx)
}

func runBrokerBridge(ctx context.Context, cfg *config.Config, hello proto.Hello, backend *logging.Backend) error {
	log := backend.GetLogger("mqttbridge")
	peer, err := network.Dial(ctx, cfg.Server)
	if err != nil {
		return err
	}
	brk, err := broker.Connect(cfg.MQTTBroker, log)
	if err != nil {
		peer.Close()
		return err
	}
	return relay.NewBrokerBridge(peer, brk, cfg.Channel, hello, log).Run(ctx)
}

func runClient(ctx context.Context, cfg *config.Config, hello proto.Hello, backend *logging.Backend, stdin *bufio.Reader) error {
	log := backend.GetLogger("client")

	fmt.Print("Shared key: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	key, err := codec.DeriveKey(string(passphrase), cfg.Channel)
	if err != nil {
		return err
	}

	conn, err := network.Dial(ctx, cfg.Server)
	if err != nil {
		return err
	}
	display := newConsoleDisplay(os.Stdout)
	return client.New(conn, key, hello, display, stdin, log).Run(ctx)
}

func promptLine(r *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}
