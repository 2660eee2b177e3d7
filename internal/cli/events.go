package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/KafClaw/agentcore/internal/bus"
)

var (
	eventsGroup      string
	eventsFromStart  bool
	eventsKindFilter string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail governance events from the Kafka topic",
	Run:   runEvents,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsGroup, "group", "g", "", "Consumer group (empty reads partition 0 directly)")
	eventsCmd.Flags().BoolVar(&eventsFromStart, "from-start", false, "Read from the earliest offset")
	eventsCmd.Flags().StringVarP(&eventsKindFilter, "kind", "k", "", "Only show one event kind (context, loop, approval, subagent)")
}

func runEvents(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	kcfg := cfg.Bus.Kafka
	if !kcfg.Enabled {
		fmt.Println("Error: Kafka is disabled (set AGENTCORE_BUS_KAFKA_ENABLED=true)")
		os.Exit(1)
	}

	startOffset := kafka.LastOffset
	if eventsFromStart {
		startOffset = kafka.FirstOffset
	}
	readerCfg := kafka.ReaderConfig{
		Brokers:     kcfg.Brokers,
		Topic:       kcfg.Topic,
		StartOffset: startOffset,
		MaxWait:     3 * time.Second,
	}
	if eventsGroup != "" {
		readerCfg.GroupID = eventsGroup
	}
	reader := kafka.NewReader(readerCfg)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Tailing %s on %v (Ctrl-C to stop)\n", kcfg.Topic, kcfg.Brokers)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		var ev bus.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			fmt.Printf("%s  (unparseable) %s\n", msg.Time.Format("15:04:05"), string(msg.Value))
			continue
		}
		if eventsKindFilter != "" && ev.Kind != eventsKindFilter {
			continue
		}
		payload := ""
		if len(ev.Payload) > 0 {
			if b, err := json.Marshal(ev.Payload); err == nil {
				payload = " " + string(b)
			}
		}
		fmt.Printf("%s  %s %s session=%s%s\n",
			ev.Timestamp.Format("15:04:05"), kindColored(ev.Kind), ev.Type, ev.SessionID, payload)
	}
}

func kindColored(kind string) string {
	switch kind {
	case bus.KindApproval:
		return color.YellowString("%-8s", kind)
	case bus.KindLoop:
		return color.RedString("%-8s", kind)
	case bus.KindContext:
		return color.CyanString("%-8s", kind)
	default:
		return fmt.Sprintf("%-8s", kind)
	}
}
