// Package decode prints MAVLink messages from hex dumps, e.g. captured by tcpdump or mavproxy.
package decode

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/cmd/rfdlink/subcmd"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/helpers/cli"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavlink"
	"github.com/temoto/rfdlink/state"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, env *subcmd.Env) error {
	p, err := newParser(env.Config)
	if err != nil {
		return errors.Trace(err)
	}
	cli.MainLoop(modName, newExecutor(p, os.Stdout, env.Log), nil)
	env.Log.Debugf("parser stat=%s buffered=%d", p.Stat.String(), p.Buffered())
	return nil
}

func newParser(config *state.Config) (*mavlink.Parser, error) {
	d, err := mavlink.NewLinkDialect(config.LinkConfig().RfdTestID)
	if err != nil {
		return nil, err
	}
	return mavlink.NewParser(d), nil
}

// Input line may hold partial frame, rest is expected on next lines.
// "reset" drops buffered bytes, "exit" stops.
func newExecutor(p *mavlink.Parser, w io.Writer, log *log2.Log) func(string) bool {
	return func(line string) bool {
		switch line {
		case "":
			return true
		case "exit", "quit":
			return false
		case "reset":
			p.Reset()
			return true
		}
		b, err := helpers.ParseHex(line)
		if err != nil {
			log.Errorf("hex decode err=%v", err)
			return true
		}
		_, _ = p.Write(b)
		for {
			f, m, ok := p.Next()
			if !ok {
				break
			}
			fmt.Fprintf(w, "%s %s\n", f.String(), m.String())
		}
		return true
	}
}
