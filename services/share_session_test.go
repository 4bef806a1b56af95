package services

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

type shareFixture struct {
	session   *ShareSession
	registry  *Comshare
	sender    *fakeSender
	frontend  *fakeFrontend
	discovery *fakeDiscovery
}

func newShareFixture() *shareFixture {
	f := &shareFixture{
		registry:  NewComshare(),
		sender:    newFakeSender(),
		frontend:  &fakeFrontend{},
		discovery: &fakeDiscovery{},
	}
	liveness := NewLiveness(&recordingNotifier{}, stoppedContext())
	f.session = NewShareSession(f.registry, liveness, f.sender, f.frontend, f.discovery, "10.0.0.1")
	return f
}

// connectAsTarget 以被控端身份接受来自 ip 的共享申请
func (f *shareFixture) connectAsTarget(t *testing.T, peerApp string, ip string) {
	t.Helper()
	apply := &entities.ShareConnectApply{AppName: peerApp, TarAppName: "local-app", IP: ip}
	if err := f.session.OnApplyConnect(apply, `{}`); err != nil {
		t.Fatalf("OnApplyConnect: %v", err)
	}
	if err := f.session.ConnectReply(&entities.ShareReplyDecision{Reply: constants.ShareConnectConfirm}); err != nil {
		t.Fatalf("ConnectReply: %v", err)
	}
}

func TestShareTargetAcceptsApply(t *testing.T) {
	f := newShareFixture()
	f.connectAsTarget(t, "peer-app", "10.0.0.2")

	info := f.session.Info()
	if info.State != entities.ShareConnected || info.Role != entities.RoleTarget {
		t.Fatalf("unexpected session %+v", info)
	}
	if info.ControllerApp != "peer-app" || info.TargetApp != "local-app" || info.SharedIP != "10.0.0.2" {
		t.Fatalf("unexpected session %+v", info)
	}
	if !f.discovery.connected || f.discovery.shareIP != "10.0.0.2" {
		t.Errorf("share not announced: %+v", f.discovery)
	}
	if f.registry.TargetAppName("local-app") != "peer-app" {
		t.Errorf("binding not recorded: %v", f.registry.Bindings())
	}
	env := f.sender.lastSent("peer-app", entities.KindShareConnectReply)
	if env == nil {
		t.Fatal("no reply sent to controller")
	}
	reply := decodeAs[*entities.ShareConnectReply](env)
	if reply.Reply != constants.ShareConnectConfirm || reply.IP != "10.0.0.1" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(f.frontend.ofType(constants.FrontShareApplyConnect)) != 1 {
		t.Errorf("front-end not notified of apply")
	}
}

func TestShareSecondApplyRejected(t *testing.T) {
	f := newShareFixture()
	f.connectAsTarget(t, "peer-app", "10.0.0.2")
	sentBefore := len(f.sender.sent)

	second := &entities.ShareConnectApply{AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.3"}
	err := f.session.OnApplyConnect(second, `{}`)
	if !errors.Is(err, constants.ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	info := f.session.Info()
	if info.State != entities.ShareConnected || info.SharedIP != "10.0.0.2" || info.ControllerApp != "peer-app" {
		t.Fatalf("first session changed: %+v", info)
	}
	if f.sender.senders["peer-app"] != "10.0.0.2" {
		t.Errorf("sender of the current peer was overwritten: %v", f.sender.senders)
	}
	if len(f.sender.sent) != sentBefore {
		t.Errorf("rejection should not go through the peer sender")
	}
	if len(f.sender.once) != 1 || f.sender.once[0].ip != "10.0.0.3" {
		t.Fatalf("rejection not sent to the applicant: %+v", f.sender.once)
	}
	reply := decodeAs[*entities.ShareConnectReply](f.sender.once[0].env)
	if reply.Reply != constants.ShareConnectErrConnected {
		t.Errorf("reply = %d, want ErrConnected", reply.Reply)
	}
	if len(f.frontend.ofType(constants.FrontShareApplyConnect)) != 1 {
		t.Errorf("rejected apply should not reach the front-end")
	}
}

func TestShareSameIPReapplyAllowed(t *testing.T) {
	f := newShareFixture()
	f.connectAsTarget(t, "peer-app", "10.0.0.2")
	again := &entities.ShareConnectApply{AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.2"}
	if err := f.session.OnApplyConnect(again, `{}`); err != nil {
		t.Fatalf("reapply from the shared ip should pass: %v", err)
	}
	if f.session.State() != entities.ShareApplyPending {
		t.Errorf("state = %s", f.session.State())
	}
}

func TestShareControllerFlow(t *testing.T) {
	f := newShareFixture()
	req := &entities.ShareConnectApply{AppName: "local-app", TarAppName: "peer-app", TarIP: "10.0.0.2"}
	if err := f.session.RequestConnect(req); err != nil {
		t.Fatalf("RequestConnect: %v", err)
	}
	if f.session.State() != entities.ShareApplyPending {
		t.Fatalf("state = %s", f.session.State())
	}
	apply := decodeAs[*entities.ShareConnectApply](f.sender.lastSent("peer-app", entities.KindShareConnectApply))
	if apply.IP != "10.0.0.1" {
		t.Errorf("apply should carry own ip, got %q", apply.IP)
	}

	f.session.OnConnectReply(&entities.ShareConnectReply{
		AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.2", Reply: constants.ShareConnectConfirm,
	}, `{}`)
	if f.session.State() != entities.ShareConnected {
		t.Fatalf("state = %s", f.session.State())
	}
	if f.registry.CurrentStatus() != entities.PhaseShareConnected {
		t.Errorf("phase = %s", f.registry.CurrentStatus())
	}

	if err := f.session.RequestStart(&entities.ShareStart{}); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	f.session.OnStartResult(&entities.ShareStartRemoteReply{AppName: "peer-app", TarAppName: "local-app", Result: true})
	if f.session.State() != entities.ShareActive || f.registry.CurrentStatus() != entities.PhaseShareActive {
		t.Fatalf("state = %s, phase = %s", f.session.State(), f.registry.CurrentStatus())
	}

	f.session.RequestDisconnect(&entities.ShareDisConnect{AppName: "local-app", TarAppName: "peer-app"})
	if f.session.State() != entities.ShareNone || f.registry.CurrentStatus() != entities.PhaseDisconnected {
		t.Fatalf("state = %s, phase = %s", f.session.State(), f.registry.CurrentStatus())
	}
	if len(f.registry.Bindings()) != 0 {
		t.Errorf("binding kept after disconnect: %v", f.registry.Bindings())
	}
	if f.discovery.connected {
		t.Errorf("share announcement not cleared")
	}
}

func TestShareConnectTransportFailure(t *testing.T) {
	f := newShareFixture()
	f.sender.failApps["peer-app"] = true
	req := &entities.ShareConnectApply{AppName: "local-app", TarAppName: "peer-app", TarIP: "10.0.0.2"}
	err := f.session.RequestConnect(req)
	if !errors.Is(err, constants.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if f.session.State() != entities.ShareNone {
		t.Errorf("state = %s", f.session.State())
	}
	events := f.frontend.ofType(constants.FrontShareApplyConnectReply)
	if len(events) != 1 || events[0].app != "local-app" {
		t.Fatalf("front-end not told about the failure: %+v", events)
	}
}

func TestShareStartWithoutConnection(t *testing.T) {
	f := newShareFixture()
	f.session.OnStart(&entities.ShareStart{AppName: "peer-app", TarAppName: "local-app"})
	if f.session.State() != entities.ShareNone {
		t.Fatalf("state = %s", f.session.State())
	}
	res := decodeAs[*entities.ShareStartRemoteReply](f.sender.lastSent("peer-app", entities.KindShareStartResult))
	if res.Result || res.ErrorMsg == "" {
		t.Errorf("expected failed result, got %+v", res)
	}
}

func TestShareFlowOutAndIn(t *testing.T) {
	f := newShareFixture()
	f.connectAsTarget(t, "peer-app", "10.0.0.2")
	f.session.OnStart(&entities.ShareStart{AppName: "peer-app", TarAppName: "local-app"})
	if f.session.State() != entities.ShareActive {
		t.Fatalf("state = %s", f.session.State())
	}

	if f.session.TryFlowOut(entities.FlowLeft, 0, 10) {
		t.Errorf("flow out without neighbour in that direction should fail")
	}
	if !f.session.TryFlowOut(entities.FlowRight, 1919, 10) {
		t.Fatalf("flow out to right neighbour failed")
	}
	st := decodeAs[*entities.ShareStart](f.sender.lastSent("peer-app", entities.KindShareStart))
	if st.Flow == nil || st.Flow.Direction != entities.FlowRight || st.Flow.Y != 10 {
		t.Fatalf("unexpected flow %+v", st.Flow)
	}

	var got *entities.FlowInfo
	f.session.SetFlowInHandler(func(flow entities.FlowInfo) { got = &flow })
	f.session.OnStart(&entities.ShareStart{AppName: "peer-app", TarAppName: "local-app", Flow: &entities.FlowInfo{Direction: entities.FlowLeft, Y: 20}})
	if got == nil || got.Direction != entities.FlowLeft || got.Y != 20 {
		t.Fatalf("flow in not delivered: %+v", got)
	}
	if f.session.State() != entities.ShareActive {
		t.Errorf("flow in should not change state, got %s", f.session.State())
	}
}

func TestShareRemoteDisconnectDropsPeer(t *testing.T) {
	f := newShareFixture()
	f.connectAsTarget(t, "peer-app", "10.0.0.2")
	f.session.OnDisconnect(&entities.ShareDisConnect{AppName: "peer-app", TarAppName: "local-app"}, `{}`)
	if f.session.State() != entities.ShareNone {
		t.Fatalf("state = %s", f.session.State())
	}
	if len(f.sender.removed) != 1 || f.sender.removed[0] != "peer-app" {
		t.Errorf("ping not removed: %v", f.sender.removed)
	}
	if len(f.frontend.ofType(constants.FrontShareDisconnect)) != 1 {
		t.Errorf("front-end not notified")
	}
	// 断开后可以接受新的申请
	apply := &entities.ShareConnectApply{AppName: "other-app", TarAppName: "local-app", IP: "10.0.0.3"}
	if err := f.session.OnApplyConnect(apply, `{}`); err != nil {
		t.Fatalf("apply after disconnect: %v", err)
	}
}

// connectAsController 本机向 peer-app 申请共享并得到同意
func (f *shareFixture) connectAsController(t *testing.T) {
	t.Helper()
	req := &entities.ShareConnectApply{AppName: "local-app", TarAppName: "peer-app", TarIP: "10.0.0.2"}
	if err := f.session.RequestConnect(req); err != nil {
		t.Fatalf("RequestConnect: %v", err)
	}
	f.session.OnConnectReply(&entities.ShareConnectReply{
		AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.2", Reply: constants.ShareConnectConfirm,
	}, `{}`)
	if f.session.State() != entities.ShareConnected {
		t.Fatalf("state = %s", f.session.State())
	}
}

func TestShareUnsolicitedConnectReplyIgnored(t *testing.T) {
	f := newShareFixture()
	f.session.OnConnectReply(&entities.ShareConnectReply{
		AppName: "intruder", TarAppName: "local-app", IP: "10.9.9.9", Reply: constants.ShareConnectConfirm,
	}, `{}`)
	info := f.session.Info()
	if info.State != entities.ShareNone || info.SharedIP != "" {
		t.Fatalf("reply without an apply changed the session: %+v", info)
	}
	if f.registry.CurrentStatus() != entities.PhaseIdle {
		t.Errorf("phase = %s", f.registry.CurrentStatus())
	}
	if len(f.frontend.ofType(constants.FrontShareApplyConnectReply)) != 0 {
		t.Errorf("unsolicited reply reached the front-end")
	}

	// 之后来自其他设备的申请照常受理
	apply := &entities.ShareConnectApply{AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.2"}
	if err := f.session.OnApplyConnect(apply, `{}`); err != nil {
		t.Fatalf("legitimate apply rejected: %v", err)
	}
}

func TestShareConnectReplyFromOtherAppIgnored(t *testing.T) {
	f := newShareFixture()
	req := &entities.ShareConnectApply{AppName: "local-app", TarAppName: "peer-app", TarIP: "10.0.0.2"}
	if err := f.session.RequestConnect(req); err != nil {
		t.Fatalf("RequestConnect: %v", err)
	}
	f.session.OnConnectReply(&entities.ShareConnectReply{
		AppName: "other-app", TarAppName: "local-app", IP: "10.9.9.9", Reply: constants.ShareConnectConfirm,
	}, `{}`)
	if f.session.State() != entities.ShareApplyPending {
		t.Fatalf("reply from another app accepted, state = %s", f.session.State())
	}
	f.session.OnConnectReply(&entities.ShareConnectReply{
		AppName: "peer-app", TarAppName: "local-app", IP: "10.0.0.2", Reply: constants.ShareConnectConfirm,
	}, `{}`)
	if info := f.session.Info(); info.State != entities.ShareConnected || info.SharedIP != "10.0.0.2" {
		t.Fatalf("expected reply not applied: %+v", info)
	}
}

func TestShareStrayStartResultIgnored(t *testing.T) {
	f := newShareFixture()
	f.session.OnStartResult(&entities.ShareStartRemoteReply{AppName: "peer-app", TarAppName: "local-app", Result: true})
	if f.session.State() != entities.ShareNone {
		t.Fatalf("start result without a session changed state to %s", f.session.State())
	}

	// 被控端不处理开始结果
	f.connectAsTarget(t, "peer-app", "10.0.0.2")
	f.session.OnStartResult(&entities.ShareStartRemoteReply{AppName: "peer-app", TarAppName: "local-app", Result: true})
	if f.session.State() != entities.ShareConnected {
		t.Fatalf("target accepted a start result, state = %s", f.session.State())
	}
	if len(f.frontend.ofType(constants.FrontShareStartResult)) != 0 {
		t.Errorf("stray start result reached the front-end")
	}
}

func TestShareStartErrorWrappedOnce(t *testing.T) {
	f := newShareFixture()
	f.connectAsController(t)
	f.sender.failApps["peer-app"] = true
	err := f.session.RequestStart(&entities.ShareStart{})
	if !errors.Is(err, constants.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	events := f.frontend.ofType(constants.FrontShareStartResult)
	if len(events) != 1 {
		t.Fatalf("expected one start result event, got %+v", events)
	}
	var reply entities.ShareStartReply
	if err := json.Unmarshal([]byte(events[0].json), &reply); err != nil {
		t.Fatalf("bad event: %v", err)
	}
	if n := strings.Count(reply.ErrorMsg, constants.ErrTransport.Error()); n != 1 {
		t.Errorf("error message %q repeats the transport prefix %d times", reply.ErrorMsg, n)
	}
	if f.session.State() != entities.ShareNone {
		t.Errorf("state = %s", f.session.State())
	}
}

func TestShareAsyncSendFailure(t *testing.T) {
	f := newShareFixture()
	req := &entities.ShareConnectApply{AppName: "local-app", TarAppName: "peer-app", TarIP: "10.0.0.2"}
	if err := f.session.RequestConnect(req); err != nil {
		t.Fatalf("RequestConnect: %v", err)
	}
	applyEnv := f.sender.lastSent("peer-app", entities.KindShareConnectApply)

	// 过期的失败不影响其他对端的会话
	f.session.OnSendFailure("other-app", applyEnv, constants.ErrTransport)
	if f.session.State() != entities.ShareApplyPending {
		t.Fatalf("failure for another app changed state to %s", f.session.State())
	}

	f.session.OnSendFailure("peer-app", applyEnv, constants.ErrTransport)
	if f.session.State() != entities.ShareNone || f.registry.CurrentStatus() != entities.PhaseDisconnected {
		t.Fatalf("state = %s, phase = %s", f.session.State(), f.registry.CurrentStatus())
	}
	events := f.frontend.ofType(constants.FrontShareApplyConnectReply)
	if len(events) != 1 {
		t.Fatalf("front-end not told about the failure: %+v", events)
	}
	var reply entities.ShareConnectReply
	if err := json.Unmarshal([]byte(events[0].json), &reply); err != nil {
		t.Fatalf("bad event: %v", err)
	}
	if reply.Reply != constants.ShareConnectErrTransport || reply.AppName != "peer-app" || reply.IP != "10.0.0.2" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestShareAsyncStartFailure(t *testing.T) {
	f := newShareFixture()
	f.connectAsController(t)
	if err := f.session.RequestStart(&entities.ShareStart{}); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	startEnv := f.sender.lastSent("peer-app", entities.KindShareStart)
	f.session.OnSendFailure("peer-app", startEnv, constants.ErrTransport)
	if f.session.State() != entities.ShareNone {
		t.Fatalf("state = %s", f.session.State())
	}
	if len(f.frontend.ofType(constants.FrontShareStartResult)) != 1 {
		t.Errorf("front-end not told about the failed start")
	}
}
