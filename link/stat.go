package link

// Values are read and modified atomically, but not consistently.

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Connects     expvar.Int
	ConnectFails expvar.Int
	Heartbeats   expvar.Int
	Sent         expvar.Int
	SendFails    expvar.Int
	Timeouts     expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"connects":%d,"connect_fails":%d,"heartbeats":%d,"sent":%d,"send_fails":%d,"timeouts":%d}`,
		s.Connects.Value(), s.ConnectFails.Value(), s.Heartbeats.Value(),
		s.Sent.Value(), s.SendFails.Value(), s.Timeouts.Value())
}

// Map is flat snapshot for reporting.
func (s *Stat) Map() map[string]int64 {
	return map[string]int64{
		"connects":      s.Connects.Value(),
		"connect_fails": s.ConnectFails.Value(),
		"heartbeats":    s.Heartbeats.Value(),
		"sent":          s.Sent.Value(),
		"send_fails":    s.SendFails.Value(),
		"timeouts":      s.Timeouts.Value(),
	}
}
