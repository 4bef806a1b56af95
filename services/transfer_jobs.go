package services

// 文件传输任务: 任务管理器和按任务分发的 worker 池

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/somebottle/cooperation-daemon/codec"
	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/utils"
)

type transferJob struct {
	id      string
	app     string
	saveDir string
	total   int64
	// 已写入的字节数
	received int64
	paused   bool
}

// JobManager 接收端的传输任务管理
type JobManager struct {
	mutex      sync.Mutex
	jobs       map[string]*transferJob
	receiveDir string
	frontend   FrontendSink
}

// NewJobManager 创建传输任务管理器
//
// receiveDir: 文件接收根目录
// frontend: 任务状态变化时通知前端
func NewJobManager(receiveDir string, frontend FrontendSink) *JobManager {
	return &JobManager{
		jobs:       make(map[string]*transferJob),
		receiveDir: receiveDir,
		frontend:   frontend,
	}
}

// safeJoin 把对端给出的相对路径限制在 base 目录内
func safeJoin(base string, name string) string {
	cleaned := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(name))
	return filepath.Join(base, cleaned)
}

// HandleRemoteRequestJob 登记对端发起的传输任务，没有任务 ID 时生成一个
func (jm *JobManager) HandleRemoteRequestJob(req *entities.TransJobRequest) (string, bool) {
	if req.JobID == "" {
		req.JobID = utils.NewJobID()
	}
	saveDir := safeJoin(jm.receiveDir, req.Save)
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		slog.Error("Failed to create receive directory", "dir", saveDir, "error", err)
		return req.AppName, false
	}
	jm.mutex.Lock()
	jm.jobs[req.JobID] = &transferJob{
		id:      req.JobID,
		app:     req.AppName,
		saveDir: saveDir,
		total:   req.Total,
	}
	jm.mutex.Unlock()
	slog.Info("Transfer job registered", "job", req.JobID, "app", req.AppName, "dir", saveDir)
	jm.notify(req.AppName, "start", req)
	return req.AppName, true
}

// HandleFSData 把数据块写到任务目录下的对应文件
func (jm *JobManager) HandleFSData(chunk *entities.FileChunk, data []byte) bool {
	jm.mutex.Lock()
	job, ok := jm.jobs[chunk.JobID]
	if !ok || job.paused {
		jm.mutex.Unlock()
		return false
	}
	path := safeJoin(job.saveDir, chunk.Name)
	jm.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slog.Warn("Failed to create directory for chunk", "path", path, "error", err)
		return false
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("Failed to open file for chunk", "path", path, "error", err)
		return false
	}
	defer file.Close()
	if _, err := file.WriteAt(data, chunk.Offset); err != nil {
		slog.Warn("Failed to write chunk", "path", path, "offset", chunk.Offset, "error", err)
		return false
	}

	jm.mutex.Lock()
	job.received += int64(len(data))
	jm.mutex.Unlock()
	return true
}

// HandleTransReport 处理对端的传输状态，任务完成时移除
func (jm *JobManager) HandleTransReport(report *entities.TransReport) bool {
	jm.mutex.Lock()
	job, ok := jm.jobs[report.JobID]
	if ok && report.Status == constants.TransStatusDone {
		delete(jm.jobs, report.JobID)
	}
	jm.mutex.Unlock()
	if !ok {
		return false
	}
	jm.notify(job.app, "report", report)
	return true
}

// HandleCancelJob 取消任务，已写入的文件保留
func (jm *JobManager) HandleCancelJob(ctrl *entities.TransJobControl) bool {
	jm.mutex.Lock()
	job, ok := jm.jobs[ctrl.JobID]
	delete(jm.jobs, ctrl.JobID)
	jm.mutex.Unlock()
	if ok {
		jm.notify(job.app, "cancel", ctrl)
	}
	return ok
}

func (jm *JobManager) setPaused(jobID string, paused bool) bool {
	jm.mutex.Lock()
	defer jm.mutex.Unlock()
	job, ok := jm.jobs[jobID]
	if ok {
		job.paused = paused
	}
	return ok
}

func (jm *JobManager) HandlePauseJob(ctrl *entities.TransJobControl) bool {
	return jm.setPaused(ctrl.JobID, true)
}

func (jm *JobManager) HandleResumeJob(ctrl *entities.TransJobControl) bool {
	return jm.setPaused(ctrl.JobID, false)
}

// Progress 返回任务已接收和总字节数
func (jm *JobManager) Progress(jobID string) (received int64, total int64, ok bool) {
	jm.mutex.Lock()
	defer jm.mutex.Unlock()
	job, ok := jm.jobs[jobID]
	if !ok {
		return 0, 0, false
	}
	return job.received, job.total, true
}

type transferEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (jm *JobManager) notify(app string, event string, data any) {
	if jm.frontend == nil {
		return
	}
	payload, err := json.Marshal(&transferEvent{Event: event, Data: data})
	if err != nil {
		return
	}
	jm.frontend.SendToFrontend(app, constants.FrontTransferEvent, string(payload))
}

// transferTask 交给 worker 处理的传输消息
type transferTask struct {
	// 回复写回消息到达的端口
	replier ReplyWriter
	connID  string
	env     *entities.Envelope
	payload any
}

// TransferPool 传输消息 worker 池
//
// 同一个任务的消息总是交给同一个 worker，保证任务内的顺序
type TransferPool struct {
	queues   []chan transferTask
	jobs     TransferJobs
	registry *Comshare
	liveness *Liveness
}

// NewTransferPool 创建传输 worker 池
func NewTransferPool(workers int, jobs TransferJobs, registry *Comshare, liveness *Liveness) *TransferPool {
	if workers <= 0 {
		workers = 1
	}
	queues := make([]chan transferTask, workers)
	for i := range queues {
		queues[i] = make(chan transferTask, configs.TransferJobQueueSize)
	}
	return &TransferPool{
		queues:   queues,
		jobs:     jobs,
		registry: registry,
		liveness: liveness,
	}
}

// Start 启动所有 worker，随上下文退出
func (tp *TransferPool) Start(ctx context.Context) {
	for _, queue := range tp.queues {
		go tp.work(ctx, queue)
	}
}

func (tp *TransferPool) work(ctx context.Context, queue <-chan transferTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-queue:
			tp.process(task)
		}
	}
}

// taskKey 决定消息交给哪个 worker
func taskKey(payload any) string {
	switch p := payload.(type) {
	case *entities.TransJobRequest:
		if p.JobID != "" {
			return p.JobID
		}
		return p.Path
	case *entities.FileChunk:
		return p.JobID
	case *entities.TransReport:
		return p.JobID
	case *entities.TransJobControl:
		return p.JobID
	}
	return ""
}

// Submit 提交一条传输消息，队列满时阻塞直到上下文结束
//
// replier: 处理结果写回该端口上的 connID 连接
func (tp *TransferPool) Submit(ctx context.Context, replier ReplyWriter, connID string, env *entities.Envelope, payload any) error {
	hasher := fnv.New32a()
	hasher.Write([]byte(taskKey(payload)))
	queue := tp.queues[hasher.Sum32()%uint32(len(tp.queues))]
	select {
	case queue <- transferTask{replier: replier, connID: connID, env: env, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultCode(ok bool) int {
	if ok {
		return constants.TransResultOK
	}
	return constants.TransResultIOError
}

// process 调用任务协作方并把结果回复给对端
func (tp *TransferPool) process(task transferTask) {
	var resp entities.FileTransResponse
	switch p := task.payload.(type) {
	case *entities.TransJobRequest:
		app, ok := tp.jobs.HandleRemoteRequestJob(p)
		if ok {
			tp.registry.UpdateStatus(entities.PhaseReceiving)
			tp.liveness.Remove(app)
		}
		resp = entities.FileTransResponse{ID: p.JobID, Name: p.Path, Result: resultCode(ok)}
	case *entities.FileChunk:
		ok := tp.jobs.HandleFSData(p, task.env.Binary)
		resp = entities.FileTransResponse{ID: p.JobID, Name: p.Name, Result: resultCode(ok)}
	case *entities.TransReport:
		ok := tp.jobs.HandleTransReport(p)
		if ok && task.env.Kind == entities.KindFSDone {
			tp.registry.UpdateStatus(entities.PhaseTransferConnected)
		}
		resp = entities.FileTransResponse{ID: p.JobID, Name: p.Name, Result: resultCode(ok)}
	case *entities.TransJobControl:
		var ok bool
		switch task.env.Kind {
		case entities.KindTransCancel:
			ok = tp.jobs.HandleCancelJob(p)
			tp.registry.UpdateStatus(entities.PhaseDisconnected)
		case entities.KindTransPause:
			ok = tp.jobs.HandlePauseJob(p)
		case entities.KindTransResume:
			ok = tp.jobs.HandleResumeJob(p)
		}
		resp = entities.FileTransResponse{ID: p.JobID, Result: resultCode(ok)}
	default:
		slog.Warn("Unexpected transfer payload", "kind", task.env.Kind, "payload", fmt.Sprintf("%T", task.payload))
		return
	}
	env, err := codec.NewEnvelope(task.env.Kind, &resp)
	if err != nil {
		slog.Error("Failed to build transfer response", "kind", task.env.Kind, "error", err)
		return
	}
	if err := task.replier.Reply(task.connID, env); err != nil {
		slog.Debug("Failed to reply transfer message", "conn", task.connID, "kind", task.env.Kind, "error", err)
	}
}
