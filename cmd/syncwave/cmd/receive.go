package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/device"
	"github.com/syncwave/syncwave/procutil"
	"github.com/syncwave/syncwave/receiver"
	"github.com/syncwave/syncwave/sample"
	"github.com/syncwave/syncwave/statsreport"
	"github.com/syncwave/syncwave/transport"
)

var (
	receiveMulticastFlag string
	receiveIfaceFlag     string
	receiveDeviceFlag    string
	receiveMaxSeqGapFlag int
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Join a broadcast session and play it out locally, in sync",
	RunE:  runReceiveCmd,
}

func init() {
	RootCmd.AddCommand(receiveCmd)
	flags := receiveCmd.Flags()
	flags.StringVar(&receiveMulticastFlag, "multicast", "239.1.2.3:6464", "multicast group:port to join")
	flags.StringVar(&receiveIfaceFlag, "interface", "", "network interface to join the group on, empty lets the kernel choose")
	flags.StringVar(&receiveDeviceFlag, "device", os.Getenv("RECEIVE_DEVICE"), "playback device name, defaults to $RECEIVE_DEVICE or the host default")
	flags.IntVar(&receiveMaxSeqGapFlag, "max-seq-gap", 0, "sequence gap beyond which the jitter queue resets instead of filling holes, 0 keeps the built-in default")
}

func runReceiveCmd(cmd *cobra.Command, _ []string) error {
	configureLogging()
	d, err := loadDefaults()
	if err != nil {
		return err
	}
	applyStringDefault(cmd, "multicast", &receiveMulticastFlag, d.Multicast)
	applyStringDefault(cmd, "interface", &receiveIfaceFlag, d.Interface)
	applyStringDefault(cmd, "device", &receiveDeviceFlag, d.Device)
	applyIntDefault(cmd, "max-seq-gap", &receiveMaxSeqGapFlag, d.MaxSeqGap)
	if metricsAddrFlag == "" {
		metricsAddrFlag = d.MetricsAddr
	}

	conn, err := transport.Listen(receiveMulticastFlag, receiveIfaceFlag)
	if err != nil {
		return err
	}

	output, err := device.OpenOutput(receiveDeviceFlag, "RECEIVE_DEVICE", sample.Rate, sample.Channels, sample.FramesPerPacket)
	if err != nil {
		conn.Close()
		return err
	}

	clock := sample.NewSystemClock()
	rt, err := receiver.New(conn, output, clock, uint64(receiveMaxSeqGapFlag))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddrFlag != "" {
		srv := statsreport.NewServer()
		go func() {
			if err := srv.ListenAndServe(metricsAddrFlag); err != nil {
				log.WithError(err).Error("receive: metrics server exited")
			}
		}()
		go reportReceiverStats(ctx, srv, rt)
	}

	if err := procutil.NotifyReady(); err != nil {
		log.WithError(err).Debug("receive: sd_notify failed")
	}

	log.WithField("multicast", receiveMulticastFlag).Info("receive: joining")
	return rt.Run(ctx)
}

// reportReceiverStats periodically refreshes srv with rt's live session and
// sync state until ctx is canceled.
func reportReceiverStats(ctx context.Context, srv *statsreport.Server, rt *receiver.Runtime) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sid, rs := rt.Stats()
			snap := statsreport.SnapshotFromNode("receiver", uint64(sid), rt.NodeStats())
			snap = statsreport.WithReceiverStats(snap, rs.Status.String(), rs)
			srv.Update(snap)
		}
	}
}
