package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/syncwave/syncwave/proto"
	"github.com/syncwave/syncwave/transport"
)

var (
	statsMulticastFlag string
	statsIfaceFlag     string
	statsTimeoutFlag   time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Probe a multicast group for one round of stats replies",
	RunE:  runStatsCmd,
}

func init() {
	RootCmd.AddCommand(statsCmd)
	flags := statsCmd.Flags()
	flags.StringVar(&statsMulticastFlag, "multicast", "239.1.2.3:6464", "multicast group:port to probe")
	flags.StringVar(&statsIfaceFlag, "interface", "", "network interface to probe on, empty lets the kernel choose")
	flags.DurationVar(&statsTimeoutFlag, "timeout", 2*time.Second, "how long to wait for replies")
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	configureLogging()
	d, err := loadDefaults()
	if err != nil {
		return err
	}
	applyStringDefault(cmd, "multicast", &statsMulticastFlag, d.Multicast)
	applyStringDefault(cmd, "interface", &statsIfaceFlag, d.Interface)

	conn, err := transport.Listen(statsMulticastFlag, statsIfaceFlag)
	if err != nil {
		return err
	}

	replies := make(chan statsReply, 16)
	go collectStatsReplies(conn, replies)

	if err := conn.Broadcast(proto.MarshalStatsRequest()); err != nil {
		conn.Close()
		return fmt.Errorf("stats: broadcast request: %w", err)
	}

	timer := time.NewTimer(statsTimeoutFlag)
	defer timer.Stop()

	seen := map[string]statsReply{}
	order := []string{}
loop:
	for {
		select {
		case r, ok := <-replies:
			if !ok {
				break loop
			}
			if _, known := seen[r.peer]; !known {
				order = append(order, r.peer)
			}
			seen[r.peer] = r
		case <-timer.C:
			break loop
		}
	}
	conn.Close()

	printStatsTable(order, seen)
	return nil
}

type statsReply struct {
	peer string
	pkt  proto.StatsReplyPacket
	role proto.StatsReplyFlags
}

// collectStatsReplies reads STATS_REPLY packets off conn until it is
// closed, forwarding each to out. It ignores anything else on the wire.
func collectStatsReplies(conn transport.Conn, out chan<- statsReply) {
	defer close(out)
	buf := make([]byte, proto.MaxPacketLen)
	for {
		n, peer, err := conn.RecvFrom(buf)
		if err != nil {
			return
		}
		pkt, err := proto.ParsePacket(buf[:n])
		if err != nil || pkt.StatsReply == nil {
			continue
		}
		out <- statsReply{peer: peer, pkt: *pkt.StatsReply, role: proto.StatsReplyFlags(pkt.Header.Flags)}
	}
}

func printStatsTable(order []string, seen map[string]statsReply) {
	colorize := term.IsTerminal(int(os.Stdout.Fd()))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"peer", "role", "session", "status", "buffer(s)", "network(s)", "rss(mb)", "threads"})

	for _, peer := range order {
		r := seen[peer]
		role := "source"
		status := "-"
		buf := "-"
		netLat := "-"
		if r.role&proto.FlagIsReceiver != 0 {
			role = "receiver"
			status = statusString(r.pkt.Receiver.Status, colorize)
			if r.pkt.Receiver.HasBufferLength() {
				buf = fmt.Sprintf("%.3f", r.pkt.Receiver.BufferLength())
			}
			if r.pkt.Receiver.HasNetworkLatency() {
				netLat = fmt.Sprintf("%.3f", r.pkt.Receiver.NetworkLatency())
			}
		}
		table.Append([]string{
			peer,
			role,
			fmt.Sprintf("%x", r.pkt.SessionID),
			status,
			buf,
			netLat,
			fmt.Sprintf("%.1f", float64(r.pkt.Node.RSSBytes)/(1<<20)),
			fmt.Sprintf("%d", r.pkt.Node.NumThreads),
		})
	}
	table.Render()
}

// statusString renders a receiver's sync state, colorized when stdout is
// a terminal: green once synced, yellow while catching up, red on miss.
func statusString(s proto.StreamStatus, colorize bool) string {
	if !colorize {
		return s.String()
	}
	switch s {
	case proto.StatusSync:
		return color.GreenString(s.String())
	case proto.StatusSeek, proto.StatusSlew:
		return color.YellowString(s.String())
	case proto.StatusMiss:
		return color.RedString(s.String())
	default:
		return s.String()
	}
}
