package netcore

// ConnStats is a point-in-time snapshot of one connection's bookkeeping.
type ConnStats struct {
	LastRecvTime  float64
	TotalSent     int64
	TotalReceived int64
}

func (c *TCPAccept) Stats() ConnStats {
	return ConnStats{
		LastRecvTime:  c.lastRecv,
		TotalSent:     c.sendTotal.Load(),
		TotalReceived: c.recvTotal.Load(),
	}
}

// ServerStats aggregates the engine-level counters.
type ServerStats struct {
	ActiveConns   int
	PendingJoins  int
	TotalAccepted int64
	AcceptFatals  int64
}
