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
	"github.com/syncwave/syncwave/sample"
	"github.com/syncwave/syncwave/source"
	"github.com/syncwave/syncwave/statsreport"
	"github.com/syncwave/syncwave/transport"
)

// statsReportInterval is how often a running stream or receive command
// refreshes its local metrics server from the runtime's live state.
const statsReportInterval = time.Second

var (
	streamMulticastFlag string
	streamIfaceFlag     string
	streamDeviceFlag    string
	streamDelayMsFlag   int
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Capture local audio and broadcast it on the LAN",
	RunE:  runStreamCmd,
}

func init() {
	RootCmd.AddCommand(streamCmd)
	flags := streamCmd.Flags()
	flags.StringVar(&streamMulticastFlag, "multicast", "239.1.2.3:6464", "multicast group:port to broadcast on")
	flags.StringVar(&streamIfaceFlag, "interface", "", "network interface to broadcast on, empty lets the kernel choose")
	flags.StringVar(&streamDeviceFlag, "device", os.Getenv("SOURCE_DEVICE"), "capture device name, defaults to $SOURCE_DEVICE or the host default")
	flags.IntVar(&streamDelayMsFlag, "delay-ms", 20, "milliseconds of lead time stamped onto each packet's PTS")
}

func runStreamCmd(cmd *cobra.Command, _ []string) error {
	configureLogging()
	d, err := loadDefaults()
	if err != nil {
		return err
	}
	applyStringDefault(cmd, "multicast", &streamMulticastFlag, d.Multicast)
	applyStringDefault(cmd, "interface", &streamIfaceFlag, d.Interface)
	applyStringDefault(cmd, "device", &streamDeviceFlag, d.Device)
	applyIntDefault(cmd, "delay-ms", &streamDelayMsFlag, d.DelayMs)
	if metricsAddrFlag == "" {
		metricsAddrFlag = d.MetricsAddr
	}

	conn, err := transport.Listen(streamMulticastFlag, streamIfaceFlag)
	if err != nil {
		return err
	}

	input, err := device.OpenInput(streamDeviceFlag, "SOURCE_DEVICE", sample.Rate, sample.Channels, sample.FramesPerPacket)
	if err != nil {
		conn.Close()
		return err
	}

	clock := sample.NewSystemClock()
	delay := sample.DurationFromMicros(int64(streamDelayMsFlag) * 1000)
	rt, err := source.New(conn, input, clock, delay)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddrFlag != "" {
		srv := statsreport.NewServer()
		go func() {
			if err := srv.ListenAndServe(metricsAddrFlag); err != nil {
				log.WithError(err).Error("stream: metrics server exited")
			}
		}()
		go reportSourceStats(ctx, srv, rt)
	}

	if err := procutil.NotifyReady(); err != nil {
		log.WithError(err).Debug("stream: sd_notify failed")
	}

	log.WithFields(log.Fields{
		"session_id": rt.SessionID,
		"multicast":  streamMulticastFlag,
	}).Info("stream: broadcasting")
	return rt.Run(ctx)
}

// reportSourceStats periodically refreshes srv with rt's live node stats
// until ctx is canceled.
func reportSourceStats(ctx context.Context, srv *statsreport.Server, rt *source.Runtime) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := statsreport.SnapshotFromNode("source", uint64(rt.SessionID), rt.NodeStats())
			srv.Update(snap)
		}
	}
}
