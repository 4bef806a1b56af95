package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

func TestJobManagerWritesChunks(t *testing.T) {
	dir := t.TempDir()
	frontend := &fakeFrontend{}
	jm := NewJobManager(dir, frontend)

	req := &entities.TransJobRequest{AppName: "peer-app", Path: "/home/peer/docs", Save: "docs", Total: 10}
	app, ok := jm.HandleRemoteRequestJob(req)
	if !ok || app != "peer-app" || req.JobID == "" {
		t.Fatalf("job not registered: app=%q ok=%v id=%q", app, ok, req.JobID)
	}
	if !jm.HandleFSData(&entities.FileChunk{JobID: req.JobID, Name: "a.txt", Offset: 5}, []byte("world")) {
		t.Fatal("second chunk rejected")
	}
	if !jm.HandleFSData(&entities.FileChunk{JobID: req.JobID, Name: "a.txt", Offset: 0}, []byte("hello")) {
		t.Fatal("first chunk rejected")
	}
	content, err := os.ReadFile(filepath.Join(dir, "docs", "a.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(content) != "helloworld" {
		t.Errorf("content = %q", content)
	}
	if received, total, _ := jm.Progress(req.JobID); received != 10 || total != 10 {
		t.Errorf("progress = %d/%d", received, total)
	}

	if !jm.HandleTransReport(&entities.TransReport{JobID: req.JobID, Status: constants.TransStatusDone}) {
		t.Fatal("report for known job rejected")
	}
	if _, _, ok := jm.Progress(req.JobID); ok {
		t.Errorf("finished job still tracked")
	}
	if len(frontend.ofType(constants.FrontTransferEvent)) != 2 {
		t.Errorf("expected start and report events, got %+v", frontend.events)
	}
}

func TestJobManagerStaysInReceiveDir(t *testing.T) {
	dir := t.TempDir()
	jm := NewJobManager(dir, nil)
	req := &entities.TransJobRequest{AppName: "peer-app", Save: "../../escape"}
	if _, ok := jm.HandleRemoteRequestJob(req); !ok {
		t.Fatal("job not registered")
	}
	if !jm.HandleFSData(&entities.FileChunk{JobID: req.JobID, Name: "../../../x.txt"}, []byte("x")) {
		t.Fatal("chunk rejected")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape", "x.txt")); err != nil {
		t.Errorf("chunk not written under the receive dir: %v", err)
	}
}

func TestJobManagerPauseAndCancel(t *testing.T) {
	jm := NewJobManager(t.TempDir(), nil)
	req := &entities.TransJobRequest{AppName: "peer-app", JobID: "job-1"}
	jm.HandleRemoteRequestJob(req)
	ctrl := &entities.TransJobControl{AppName: "peer-app", JobID: "job-1"}

	if !jm.HandlePauseJob(ctrl) {
		t.Fatal("pause failed")
	}
	if jm.HandleFSData(&entities.FileChunk{JobID: "job-1", Name: "a"}, []byte("a")) {
		t.Errorf("chunk accepted while paused")
	}
	if !jm.HandleResumeJob(ctrl) {
		t.Fatal("resume failed")
	}
	if !jm.HandleFSData(&entities.FileChunk{JobID: "job-1", Name: "a"}, []byte("a")) {
		t.Errorf("chunk rejected after resume")
	}
	if !jm.HandleCancelJob(ctrl) {
		t.Fatal("cancel failed")
	}
	if jm.HandleCancelJob(ctrl) {
		t.Errorf("second cancel should report unknown job")
	}
}

func TestTransferPoolRepliesAndUpdatesPhase(t *testing.T) {
	registry := NewComshare()
	liveness := NewLiveness(&recordingNotifier{}, stoppedContext())
	liveness.OnLogin("peer-app", "10.0.0.2")
	replier := newFakeReplier()
	pool := NewTransferPool(2, NewJobManager(t.TempDir(), nil), registry, liveness)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	job := &entities.TransJobRequest{AppName: "peer-app", JobID: "job-1"}
	if err := pool.Submit(ctx, replier, "c1", &entities.Envelope{Kind: entities.KindTransJob, JSON: "{}"}, job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	chunk := &entities.FileChunk{JobID: "job-1", Name: "f.bin"}
	if err := pool.Submit(ctx, replier, "c1", &entities.Envelope{Kind: entities.KindFSData, JSON: "{}", Binary: []byte{1, 2, 3}}, chunk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for replier.count("c1") < 2 {
		select {
		case <-replier.notify:
		case <-deadline:
			t.Fatalf("got %d replies", replier.count("c1"))
		}
	}
	var last entities.FileTransResponse
	if err := json.Unmarshal([]byte(replier.last("c1").JSON), &last); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if last.Result != constants.TransResultOK || last.Name != "f.bin" {
		t.Errorf("chunk processed out of order or failed: %+v", last)
	}
	if registry.CurrentStatus() != entities.PhaseReceiving {
		t.Errorf("phase = %s", registry.CurrentStatus())
	}
	if _, ok := liveness.Missed("peer-app"); ok {
		t.Errorf("liveness record should be dropped once the transfer starts")
	}
}
