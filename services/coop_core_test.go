package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

// closeConnFromPeer 模拟某个端口上一条来自对端的连接断开，等待回调执行完
func closeConnFromPeer(t *testing.T, onClosed func(ip string)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewTCPConnectionHub()
	client, server := net.Pipe()
	fc, err := hub.AddConnection(server)
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	done := make(chan struct{})
	go func() {
		handleTCPConnection(fc, hub, make(chan *entities.IncomeData, 1), onClosed, ctx)
		close(done)
	}()
	client.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection handler did not return")
	}
}

func TestControlConnCloseKeepsPeerOnline(t *testing.T) {
	notifier := &recordingNotifier{}
	liveness := NewLiveness(notifier, stoppedContext())
	// net.Pipe 的对端地址是 "pipe"
	liveness.OnPing("peer-app", "pipe")

	if closeCallbackFor("control", liveness) != nil {
		t.Fatal("control port should not report offline on close")
	}
	closeConnFromPeer(t, closeCallbackFor("control", liveness))
	if got := notifier.snapshot(); len(got) != 0 {
		t.Fatalf("control connection close reported offline: %+v", got)
	}
	if _, ok := liveness.RemoteIP("peer-app"); !ok {
		t.Errorf("peer dropped after a control connection closed")
	}

	closeConnFromPeer(t, closeCallbackFor("transfer", liveness))
	got := notifier.snapshot()
	if len(got) != 1 || got[0].app != "peer-app" || got[0].reason != constants.OfflineConnectionCallbackTimeout {
		t.Fatalf("transfer connection close not reported: %+v", got)
	}
}
