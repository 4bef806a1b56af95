package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

func peerPackage(t *testing.T, info entities.NodeInfo) string {
	t.Helper()
	data, err := json.Marshal(&info)
	if err != nil {
		t.Fatalf("marshal node info: %v", err)
	}
	return string(data)
}

func TestDiscoveryIngestNotifiesOnlyOnChange(t *testing.T) {
	frontend := &fakeFrontend{}
	job := NewDiscoveryJob("192.168.1.2", []string{"coop"}, frontend)

	pkg := peerPackage(t, entities.NodeInfo{Hostname: "laptop", Apps: []string{"coop"}})
	job.IngestPeerPackage("192.168.1.9", pkg)
	job.IngestPeerPackage("192.168.1.9", pkg)
	if n := len(frontend.ofType(constants.FrontPeerCallback)); n != 1 {
		t.Fatalf("expected 1 peer callback, got %d", n)
	}
	info, ok := job.Peer("192.168.1.9")
	if !ok || info.IPv4 != "192.168.1.9" {
		t.Fatalf("peer not recorded with sender ip: %+v", info)
	}

	changed := peerPackage(t, entities.NodeInfo{Hostname: "laptop", Apps: []string{"coop"}, ShareConnectIP: "192.168.1.5"})
	job.IngestPeerPackage("192.168.1.9", changed)
	if n := len(frontend.ofType(constants.FrontPeerCallback)); n != 2 {
		t.Fatalf("expected changed peer to be reported, got %d callbacks", n)
	}
}

func TestDiscoveryIgnoresSelfAndGarbage(t *testing.T) {
	frontend := &fakeFrontend{}
	job := NewDiscoveryJob("192.168.1.2", []string{"coop"}, frontend)
	job.IngestPeerPackage("192.168.1.2", peerPackage(t, entities.NodeInfo{Hostname: "me"}))
	job.IngestPeerPackage("192.168.1.7", "not json")
	if len(frontend.events) != 0 {
		t.Fatalf("expected no events, got %d", len(frontend.events))
	}
}

func TestDiscoveryPruneReportsExpiredPeers(t *testing.T) {
	frontend := &fakeFrontend{}
	job := NewDiscoveryJob("192.168.1.2", []string{"coop"}, frontend)
	job.IngestPeerPackage("192.168.1.9", peerPackage(t, entities.NodeInfo{Hostname: "laptop"}))

	job.Prune(time.Now())
	if _, ok := job.Peer("192.168.1.9"); !ok {
		t.Fatal("peer expired too early")
	}
	job.Prune(time.Now().Add(time.Hour))
	if _, ok := job.Peer("192.168.1.9"); ok {
		t.Fatal("peer should have expired")
	}
	callbacks := frontend.ofType(constants.FrontPeerCallback)
	var last peerCallback
	if err := json.Unmarshal([]byte(callbacks[len(callbacks)-1].json), &last); err != nil {
		t.Fatalf("decode callback: %v", err)
	}
	if last.Find || last.IP != "192.168.1.9" {
		t.Fatalf("unexpected expiry callback: %+v", last)
	}
}

func TestDiscoveryShareAnnouncement(t *testing.T) {
	job := NewDiscoveryJob("192.168.1.2", []string{"coop"}, &fakeFrontend{})
	job.SetShareAnnouncement(true, "192.168.1.9")
	var info entities.NodeInfo
	if err := json.Unmarshal([]byte(job.UDPSimulatedPackage()), &info); err != nil {
		t.Fatalf("decode self info: %v", err)
	}
	if info.ShareConnectIP != "192.168.1.9" || info.IPv4 != "192.168.1.2" {
		t.Fatalf("unexpected self info: %+v", info)
	}
	job.SetShareAnnouncement(false, "192.168.1.9")
	if err := json.Unmarshal([]byte(job.SelfInfo()), &info); err != nil {
		t.Fatalf("decode self info: %v", err)
	}
	if info.ShareConnectIP != "" {
		t.Fatalf("share ip should be cleared, got %q", info.ShareConnectIP)
	}
}

func TestPeerLoungeRefreshOutlivesOldHeapItem(t *testing.T) {
	lounge := NewPeerLounge(10 * time.Second)
	start := time.Now()
	lounge.Upsert("10.0.0.1", entities.NodeInfo{Hostname: "a"}, start)
	lounge.Upsert("10.0.0.1", entities.NodeInfo{Hostname: "a"}, start.Add(8*time.Second))
	if expired := lounge.Prune(start.Add(12 * time.Second)); len(expired) != 0 {
		t.Fatalf("refreshed peer pruned: %+v", expired)
	}
	if expired := lounge.Prune(start.Add(20 * time.Second)); len(expired) != 1 {
		t.Fatalf("expected 1 expired peer, got %d", len(expired))
	}
	if lounge.Len() != 0 {
		t.Fatalf("lounge should be empty, got %d", lounge.Len())
	}
}
