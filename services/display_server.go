package services

// 屏幕边缘检测，光标停在屏幕边缘时把键鼠控制流转到相邻设备

import (
	"encoding/json"
	"log/slog"

	"github.com/somebottle/cooperation-daemon/constants"
	"github.com/somebottle/cooperation-daemon/entities"
)

// DisplayServer 屏幕边缘流转控制器，只由控制端口的分发协程驱动
type DisplayServer struct {
	flowManager  FlowManager
	pointer      Pointer
	screenWidth  int
	screenHeight int
	lastX        int
	lastY        int
	// 是否进行边缘检测，流出后关闭，流回后重新开启
	edgeDetection bool
}

// NewDisplayServer 创建边缘流转控制器
func NewDisplayServer(flowManager FlowManager, pointer Pointer) *DisplayServer {
	return &DisplayServer{
		flowManager:   flowManager,
		pointer:       pointer,
		lastX:         -1,
		lastY:         -1,
		edgeDetection: true,
	}
}

// HandleScreenSizeChange 屏幕尺寸变化
func (ds *DisplayServer) HandleScreenSizeChange(width int, height int) {
	ds.screenWidth = width
	ds.screenHeight = height
}

// HandleMotion 处理光标移动
//
// 光标在边缘上且与上一次位置相同 (即持续顶住边缘) 时尝试流出
func (ds *DisplayServer) HandleMotion(x int, y int) {
	if ds.edgeDetection && ds.screenWidth > 0 && ds.screenHeight > 0 {
		switch {
		case x == ds.lastX && x == 0:
			ds.flowOut(entities.FlowLeft, x, y)
		case x == ds.lastX && x == ds.screenWidth-1:
			ds.flowOut(entities.FlowRight, x, y)
		case y == ds.lastY && y == 0:
			ds.flowOut(entities.FlowTop, x, y)
		case y == ds.lastY && y == ds.screenHeight-1:
			ds.flowOut(entities.FlowBottom, x, y)
		}
	}
	ds.lastX = x
	ds.lastY = y
}

// flowOut 请求流出，对方接受后停止边缘检测并隐藏光标
func (ds *DisplayServer) flowOut(direction entities.FlowDirection, x int, y int) {
	slog.Debug("Cursor reached screen edge", "direction", direction, "x", x, "y", y)
	if !ds.flowManager.TryFlowOut(direction, x, y) {
		return
	}
	ds.edgeDetection = false
	ds.pointer.HideMouse(true)
}

// FlowBack 光标从相邻设备流回
//
// direction: 光标的移动方向，光标出现在本机屏幕的对侧边缘
func (ds *DisplayServer) FlowBack(direction entities.FlowDirection, x int, y int) {
	switch direction {
	case entities.FlowLeft:
		x = ds.screenWidth - 1
	case entities.FlowRight:
		x = 0
	case entities.FlowTop:
		y = ds.screenHeight - 1
	case entities.FlowBottom:
		y = 0
	}
	x = clamp(x, 0, ds.screenWidth-1)
	y = clamp(y, 0, ds.screenHeight-1)
	ds.pointer.MoveMouse(x, y)
	ds.pointer.HideMouse(false)
	ds.lastX = x
	ds.lastY = y
	ds.edgeDetection = true
}

// EdgeDetection 是否正在进行边缘检测
func (ds *DisplayServer) EdgeDetection() bool {
	return ds.edgeDetection
}

// LastPosition 上一次记录的光标位置
func (ds *DisplayServer) LastPosition() (int, int) {
	return ds.lastX, ds.lastY
}

func clamp(v int, lo int, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}

// FrontendPointer 通过前端执行光标操作
type FrontendPointer struct {
	frontend FrontendSink
	app      string
}

// NewFrontendPointer 创建前端光标控制
//
// app: 负责注入输入事件的前端应用名，为空时推送给所有前端
func NewFrontendPointer(frontend FrontendSink, app string) *FrontendPointer {
	return &FrontendPointer{frontend: frontend, app: app}
}

type pointerCommand struct {
	Action string `json:"action"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
}

func (fp *FrontendPointer) send(cmd pointerCommand) {
	data, _ := json.Marshal(cmd)
	fp.frontend.SendToFrontend(fp.app, constants.FrontPointer, string(data))
}

func (fp *FrontendPointer) MoveMouse(x int, y int) {
	fp.send(pointerCommand{Action: "move", X: x, Y: y})
}

func (fp *FrontendPointer) HideMouse(hide bool) {
	if hide {
		fp.send(pointerCommand{Action: "hide"})
		return
	}
	fp.send(pointerCommand{Action: "show"})
}
