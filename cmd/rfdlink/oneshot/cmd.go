// Package oneshot waits for peer heartbeat, asks operator for single
// RANDOM_DEGER value and sends one RFD_TEST message.
package oneshot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/rfdlink/cmd/rfdlink/subcmd"
	"github.com/temoto/rfdlink/helpers/cli"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavconn"
	"github.com/temoto/rfdlink/mavlink"
)

const modName = "oneshot"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	lc := env.Config.LinkConfig()
	mopt, err := env.Config.MavconnOptions(env.Log)
	if err != nil {
		return errors.Trace(err)
	}
	mopt.Baud = lc.Baud

	conn, err := mavconn.Dial(ctx, lc.Address, mopt)
	if err != nil {
		return errors.Annotate(err, modName)
	}
	defer conn.Close()

	env.Log.Infof("waiting heartbeat device=%s", conn.String())
	_, f, err := conn.WaitMessage(ctx, mavlink.HeartbeatID, lc.HeartbeatWait)
	if err != nil {
		return errors.Annotatef(err, "heartbeat wait=%s", lc.HeartbeatWait)
	}
	env.Log.Infof("heartbeat from system=%d component=%d", f.SysID, f.CompID)

	var sendErr error
	sent := false
	exec := newExecutor(env.Log, lc.RfdTestID, func(m mavlink.Message) error {
		sent = true
		sendErr = conn.Send(m)
		return sendErr
	})
	cli.MainLoop(mavlink.RfdTestName+" "+mavlink.RfdTestFieldValue, exec, newCompleter())
	if !sent {
		return errors.New("nothing sent")
	}
	return sendErr
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "0", Description: "min"},
		{Text: "255", Description: "max"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

// newExecutor asks again on invalid input, stops after first send attempt.
func newExecutor(log *log2.Log, id uint32, send func(mavlink.Message) error) func(string) bool {
	return func(line string) bool {
		if line == "" {
			return true
		}
		value, err := ParseValue(line)
		if err != nil {
			log.Errorf("%s", err.Error())
			return true
		}
		m := &mavlink.RfdTest{MsgID: id, RandomDeger: value}
		if err := send(m); err != nil {
			log.Errorf("send %s err=%v", m.String(), err)
			return false
		}
		fmt.Println("Message sent")
		return false
	}
}

func ParseValue(s string) (uint8, error) {
	x, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.NotValidf("%s='%s' (expected integer 0-255)", mavlink.RfdTestFieldValue, s)
	}
	return uint8(x), nil
}
