package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/pkg/adapters/mqtt"
	"github.com/spf13/cobra"
)

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Bridge an MQTT broker to parley sessions",
	Long: `Subscribes to <prefix>/+/in and publishes every answer to
<prefix>/<session>/out. The middle topic level is the session ID.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		broker, _ := cmd.Flags().GetString("broker")
		clientID, _ := cmd.Flags().GetString("client-id")
		prefix, _ := cmd.Flags().GetString("prefix")
		qos, _ := cmd.Flags().GetInt("qos")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if qos < 0 || qos > 2 {
			return fmt.Errorf("--qos must be 0, 1 or 2")
		}
		if clientID == "" {
			host, _ := os.Hostname()
			clientID = fmt.Sprintf("parley-%s-%d", host, os.Getpid())
		}
		logger := logger()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		sessions, err := cli.NewSessions(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer sessions.Close()

		bridge := mqtt.New(mqtt.NewClient(broker, clientID, username, password), sessions,
			mqtt.WithPrefix(prefix),
			mqtt.WithQoS(byte(qos)),
			mqtt.WithLogger(logger),
			mqtt.WithInputLimit(cfg.MaxInputSize),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Bridging %s on %s\n", broker, bridge.InTopic())
		return bridge.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mqttCmd)

	mqttCmd.Flags().String("broker", "tcp://localhost:1883", "Broker URL")
	mqttCmd.Flags().String("client-id", "", "MQTT client ID (defaults to parley-<host>-<pid>)")
	mqttCmd.Flags().String("prefix", mqtt.DefaultPrefix, "Topic prefix")
	mqttCmd.Flags().Int("qos", 1, "QoS of the subscription and of the answers")
	mqttCmd.Flags().String("username", "", "Broker username")
	mqttCmd.Flags().String("password", "", "Broker password")
}
