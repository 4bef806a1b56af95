package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

// recordingNotifier 记录离线通知
type recordingNotifier struct {
	mutex     sync.Mutex
	offline   []offlineItem
	cancelled []string
}

func (rn *recordingNotifier) PreprocessOffline(app string, reason string, msg string) {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	rn.offline = append(rn.offline, offlineItem{app: app, reason: reason, msg: msg})
}

func (rn *recordingNotifier) CancelOffline(app string) {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	rn.cancelled = append(rn.cancelled, app)
}

func (rn *recordingNotifier) snapshot() []offlineItem {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	return append([]offlineItem(nil), rn.offline...)
}

// stoppedContext 返回已取消的上下文，使后台定时器立即退出，测试中手动调用 Tick
func stoppedContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestLivenessThreeMissedTicksReportOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	l := NewLiveness(notifier, stoppedContext())
	l.OnPing("peer", "10.0.0.2")
	if len(notifier.cancelled) != 1 || notifier.cancelled[0] != "peer" {
		t.Fatalf("ping should cancel offline preprocessing, got %v", notifier.cancelled)
	}

	l.Tick()
	l.Tick()
	if got := notifier.snapshot(); len(got) != 0 {
		t.Fatalf("reported offline too early: %v", got)
	}
	l.Tick()
	got := notifier.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one offline notification, got %d", len(got))
	}
	if got[0].app != "peer" || got[0].reason != constants.OfflineNoPingTimeout {
		t.Errorf("unexpected notification %+v", got[0])
	}
	var notice entities.OfflineNotice
	if err := json.Unmarshal([]byte(got[0].msg), &notice); err != nil {
		t.Fatalf("notification is not json: %v", err)
	}
	if notice.App != "peer" || !notice.Offline {
		t.Errorf("unexpected notice body %+v", notice)
	}
	if _, tracked := l.Missed("peer"); tracked {
		t.Errorf("peer still tracked after offline")
	}

	// 移除后再 tick 不再有通知
	l.Tick()
	if len(notifier.snapshot()) != 1 {
		t.Errorf("fourth tick produced another notification")
	}
}

func TestLivenessPingResetsMissedCount(t *testing.T) {
	notifier := &recordingNotifier{}
	l := NewLiveness(notifier, stoppedContext())
	l.OnLogin("peer", "10.0.0.2")
	l.Tick()
	l.Tick()
	if missed, _ := l.Missed("peer"); missed != 2 {
		t.Fatalf("expected 2 missed beats, got %d", missed)
	}
	l.OnPing("peer", "10.0.0.3")
	if missed, _ := l.Missed("peer"); missed != 0 {
		t.Fatalf("ping did not reset missed beats: %d", missed)
	}
	if ip, _ := l.RemoteIP("peer"); ip != "10.0.0.3" {
		t.Errorf("ping did not update ip: %s", ip)
	}
	l.Tick()
	l.Tick()
	if len(notifier.snapshot()) != 0 {
		t.Errorf("unexpected offline notification after reset")
	}
}

func TestLivenessTransportClosed(t *testing.T) {
	notifier := &recordingNotifier{}
	l := NewLiveness(notifier, stoppedContext())
	l.OnPing("a", "10.0.0.2")
	l.OnPing("b", "10.0.0.2")
	l.OnPing("c", "10.0.0.7")

	l.OnTransportClosed("10.0.0.2")
	got := notifier.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %v", got)
	}
	for _, item := range got {
		if item.reason != constants.OfflineConnectionCallbackTimeout {
			t.Errorf("unexpected reason %s", item.reason)
		}
		var notice entities.OfflineNotice
		if err := json.Unmarshal([]byte(item.msg), &notice); err != nil {
			t.Fatalf("bad msg: %v", err)
		}
		if notice.IP != "10.0.0.2" || notice.AppName != item.app {
			t.Errorf("unexpected notice %+v for %s", notice, item.app)
		}
	}
	if _, ok := l.RemoteIP("a"); ok {
		t.Errorf("ip mapping for a not removed")
	}
	if _, ok := l.RemoteIP("c"); !ok {
		t.Errorf("ip mapping for c removed")
	}
	// 同一 IP 再次关闭不会重复通知
	l.OnTransportClosed("10.0.0.2")
	if len(notifier.snapshot()) != 2 {
		t.Errorf("duplicate notification on second close")
	}
}

func TestLivenessConcurrentTickAndClose(t *testing.T) {
	notifier := &recordingNotifier{}
	l := NewLiveness(notifier, stoppedContext())
	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				l.OnPing("peer", "10.0.0.2")
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				l.Tick()
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				l.OnTransportClosed("10.0.0.2")
			}
		}()
	}
	wg.Wait()
}
