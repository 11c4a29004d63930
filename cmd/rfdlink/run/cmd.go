package run

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/temoto/rfdlink/cmd/rfdlink/subcmd"
	"github.com/temoto/rfdlink/link"
	"github.com/temoto/rfdlink/report"
)

const modName = "run"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	config := env.Config
	mopt, err := config.MavconnOptions(env.Log)
	if err != nil {
		return errors.Trace(err)
	}

	var reporter report.Reporter = report.Noop{}
	if config.Report.Enable {
		mr, err := report.New(config.ReportConfig(), env.Log)
		if err != nil {
			return errors.Annotate(err, "report")
		}
		reporter = mr
	}
	defer reporter.Close()

	sess := link.NewSession(config.LinkConfig(), &link.MavconnOpener{Options: mopt}, env.Log)
	sess.SetReporter(reporter)
	sess.SetAlive(env.Alive)

	subcmd.SdNotify(daemon.SdNotifyReady)
	env.Log.Debugf("run init complete")
	err = sess.Run(ctx)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	if err != nil {
		return err
	}

	env.Log.Infof("%s", Summary(sess.Stat(), sess.Seq(), sess.LastHeartbeat(), time.Now()))
	env.Log.Debugf("stat=%s", sess.Stat().String())
	return nil
}

// Summary is one line for humans after shutdown.
func Summary(st *link.Stat, seq uint8, lastHeartbeat, now time.Time) string {
	last := "never"
	if !lastHeartbeat.IsZero() {
		last = humanize.RelTime(lastHeartbeat, now, "ago", "from now")
	}
	return fmt.Sprintf("sent %s messages (last counter=%d), connects=%s timeouts=%s, last heartbeat %s",
		humanize.Comma(st.Sent.Value()), seq,
		humanize.Comma(st.Connects.Value()), humanize.Comma(st.Timeouts.Value()),
		last)
}
