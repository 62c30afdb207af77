// Package procutil holds the small, OS-facing conveniences every
// long-running node needs: pinning its audio thread so the Go scheduler
// doesn't migrate it mid-callback, asking for a higher scheduling
// priority, and telling systemd (if present) that startup finished.
package procutil

import (
	"runtime"

	"github.com/coreos/go-systemd/daemon"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// PinAudioThread locks the calling goroutine to its current OS thread and
// requests a higher scheduling priority. It must be called from the
// goroutine that will run the audio capture or playback loop, before that
// loop starts. Failure to raise priority is logged and otherwise ignored:
// a node without permission to do so still functions, just with a higher
// chance of an underrun under load.
func PinAudioThread() {
	runtime.LockOSThread()

	const wantPriority = -11 // matches common realtime-ish audio thread priority
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, wantPriority); err != nil {
		logrus.WithError(err).Debug("procutil: failed to raise audio thread priority, continuing at default")
	}
}

// NotifyReady tells systemd (via sd_notify) that this process has finished
// starting up. It is a no-op, not an error, when NOTIFY_SOCKET isn't set
// (e.g. running outside a systemd unit).
func NotifyReady() error {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		return err
	}
	if !supported {
		logrus.Debug("procutil: sd_notify not supported, skipping")
		return nil
	}
	logrus.Debug("procutil: sent sd_notify ready")
	return nil
}
