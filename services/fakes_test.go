package services

import (
	"fmt"
	"sync"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

type sentEnvelope struct {
	app string
	ip  string
	env *entities.Envelope
}

// fakeSender 记录所有发往对端的信封
type fakeSender struct {
	mutex   sync.Mutex
	senders map[string]string
	sent    []sentEnvelope
	once    []sentEnvelope
	removed []string
	pinging []string
	// 发送失败的应用
	failApps map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{senders: make(map[string]string), failApps: make(map[string]bool)}
}

func (fs *fakeSender) CreateSender(app string, ip string, port int) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.senders[app] = ip
}

func (fs *fakeSender) Send(app string, env *entities.Envelope) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.failApps[app] {
		return fmt.Errorf("%w: dial %s: connection refused", constants.ErrTransport, app)
	}
	fs.sent = append(fs.sent, sentEnvelope{app: app, ip: fs.senders[app], env: env})
	return nil
}

func (fs *fakeSender) SendOnce(ip string, port int, env *entities.Envelope) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.once = append(fs.once, sentEnvelope{ip: ip, env: env})
}

func (fs *fakeSender) StartPing(app string, localApp string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.pinging = append(fs.pinging, app)
}

func (fs *fakeSender) RemovePing(app string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.removed = append(fs.removed, app)
}

// lastSent 最近一次发送给 app 的指定类型的信封
func (fs *fakeSender) lastSent(app string, kind entities.MessageKind) *entities.Envelope {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	for i := len(fs.sent) - 1; i >= 0; i-- {
		if fs.sent[i].app == app && fs.sent[i].env.Kind == kind {
			return fs.sent[i].env
		}
	}
	return nil
}

type frontendEvent struct {
	app       string
	eventType string
	json      string
}

// fakeFrontend 记录推送给前端的事件
type fakeFrontend struct {
	mutex  sync.Mutex
	events []frontendEvent
}

func (ff *fakeFrontend) SendToFrontend(app string, eventType string, jsonStr string) {
	ff.mutex.Lock()
	defer ff.mutex.Unlock()
	ff.events = append(ff.events, frontendEvent{app: app, eventType: eventType, json: jsonStr})
}

func (ff *fakeFrontend) ofType(eventType string) []frontendEvent {
	ff.mutex.Lock()
	defer ff.mutex.Unlock()
	var res []frontendEvent
	for _, ev := range ff.events {
		if ev.eventType == eventType {
			res = append(res, ev)
		}
	}
	return res
}

// fakeDiscovery 只记录共享公告
type fakeDiscovery struct {
	mutex     sync.Mutex
	connected bool
	shareIP   string
	ingested  []string
}

func (fd *fakeDiscovery) SelfInfo() string { return `{"hostname":"self"}` }

func (fd *fakeDiscovery) UDPSimulatedPackage() string { return `{"hostname":"self","ipv4":"10.0.0.1"}` }

func (fd *fakeDiscovery) IngestPeerPackage(ip string, payload string) {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()
	fd.ingested = append(fd.ingested, ip)
}

func (fd *fakeDiscovery) SetShareAnnouncement(connected bool, ip string) {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()
	fd.connected = connected
	fd.shareIP = ip
}

// fakePointer 记录光标操作
type fakePointer struct {
	x, y   int
	moves  int
	hidden bool
}

func (fp *fakePointer) MoveMouse(x int, y int) {
	fp.x, fp.y = x, y
	fp.moves++
}

func (fp *fakePointer) HideMouse(hide bool) {
	fp.hidden = hide
}

// decodeAs 解码信封负载
func decodeAs[T any](env *entities.Envelope) T {
	payload, err := codec.DecodePayload(env)
	if err != nil {
		panic(err)
	}
	return payload.(T)
}

// fakeReplier 记录写回连接的信封
type fakeReplier struct {
	mutex   sync.Mutex
	replies map[string][]*entities.Envelope
	// 每次回复时通知
	notify chan struct{}
}

func newFakeReplier() *fakeReplier {
	return &fakeReplier{replies: make(map[string][]*entities.Envelope), notify: make(chan struct{}, 64)}
}

func (fr *fakeReplier) Reply(connID string, env *entities.Envelope) error {
	fr.mutex.Lock()
	fr.replies[connID] = append(fr.replies[connID], env)
	fr.mutex.Unlock()
	select {
	case fr.notify <- struct{}{}:
	default:
	}
	return nil
}

func (fr *fakeReplier) last(connID string) *entities.Envelope {
	fr.mutex.Lock()
	defer fr.mutex.Unlock()
	list := fr.replies[connID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (fr *fakeReplier) count(connID string) int {
	fr.mutex.Lock()
	defer fr.mutex.Unlock()
	return len(fr.replies[connID])
}
