package entities

// 会话状态相关实体

// ConnectionPhase 守护进程当前的连接阶段，同一时刻只有一个
type ConnectionPhase int32

const (
	PhaseIdle ConnectionPhase = iota
	PhaseTransferConnected
	PhaseTransferApplied
	PhaseSending
	PhaseReceiving
	PhaseShareConnected
	PhaseShareActive
	PhaseDisconnected
)

var phaseNames = [...]string{
	"Idle",
	"TransferConnected",
	"TransferApplied",
	"Sending",
	"Receiving",
	"ShareConnected",
	"ShareActive",
	"Disconnected",
}

func (p ConnectionPhase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Invalid"
	}
	return phaseNames[p]
}

// ShareState 共享会话状态
type ShareState int

const (
	ShareNone ShareState = iota
	ShareApplyPending
	ShareConnected
	ShareActive
)

func (s ShareState) String() string {
	switch s {
	case ShareApplyPending:
		return "ApplyPending"
	case ShareConnected:
		return "Connected"
	case ShareActive:
		return "Active"
	default:
		return "None"
	}
}

// ShareRole 本机在共享会话中的角色
type ShareRole int

const (
	// RoleController 控制端，键鼠从本机流出
	RoleController ShareRole = iota
	// RoleTarget 被控端
	RoleTarget
)

// FlowDirection 光标流出 / 流入的方向
type FlowDirection int

const (
	FlowTop FlowDirection = iota
	FlowRight
	FlowBottom
	FlowLeft
)

func (d FlowDirection) String() string {
	switch d {
	case FlowTop:
		return "top"
	case FlowRight:
		return "right"
	case FlowBottom:
		return "bottom"
	case FlowLeft:
		return "left"
	}
	return "unknown"
}

// ShareSessionInfo 共享会话的快照
type ShareSessionInfo struct {
	ControllerApp string
	TargetApp     string
	Role          ShareRole
	State         ShareState
	SharedIP      string
}
