package services

// 协作服务核心模块，负责把各组件组装起来

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/entities"
	"github.com/somebottle/cooperation-daemon/metrics"
	"github.com/somebottle/cooperation-daemon/utils"
)

// SetUpCooperationCore 设置并启动协作服务核心模块
//
// selfIP: 本机首选出站 IP
// outboundInterface: 出站网络接口，用于局域网发现组播
// errChan: 致命错误通道
// sigCtx: 中断信号上下文
func SetUpCooperationCore(selfIP net.IP, outboundInterface *net.Interface, errChan chan<- error, sigCtx context.Context) {
	selfIPStr := selfIP.String()
	localApp := configs.GetLocalAppName()

	// 每个端口一个入站通道，由各自的分发器串行消费
	controlInbound := make(chan *entities.IncomeData, configs.InboundChanSize)
	transferInbound := make(chan *entities.IncomeData, configs.InboundChanSize)

	controlHub := NewTCPConnectionHub()
	transferHub := NewTCPConnectionHub()
	defer func() {
		controlHub.Close()
		transferHub.Close()
	}()

	serverTLS, err := utils.NewServerTLSConfig(utils.GetHostname())
	if err != nil {
		errChan <- fmt.Errorf("Error creating TLS config: %w", err)
		return
	}
	auth, err := NewPinAuthenticator(configs.GetPinCode(), configs.IsNeedConfirm())
	if err != nil {
		errChan <- fmt.Errorf("Error preparing pin authenticator: %w", err)
		return
	}

	// 前端的请求进入控制端口的入站通道
	bridge := NewFrontendBridge(controlInbound, sigCtx)
	registry := NewComshare()
	liveness := NewLiveness(bridge, sigCtx)
	sender := NewPeerSenderPool(controlInbound, utils.NewClientTLSConfig(), selfIPStr, sigCtx)
	defer sender.Close()

	discovery := NewDiscoveryJob(selfIPStr, []string{localApp}, bridge)
	session := NewShareSession(registry, liveness, sender, bridge, discovery, selfIPStr)
	display := NewDisplayServer(session, NewFrontendPointer(bridge, localApp))
	session.SetFlowInHandler(func(flow entities.FlowInfo) {
		display.FlowBack(flow.Direction, flow.X, flow.Y)
	})

	jobs := NewJobManager(configs.GetReceiveDir(), bridge)
	transfers := NewTransferPool(configs.TransferWorkerCount, jobs, registry, liveness)
	transfers.Start(sigCtx)

	deps := DispatcherDeps{
		Registry:  registry,
		Liveness:  liveness,
		Auth:      auth,
		Sender:    sender,
		Frontend:  bridge,
		Discovery: discovery,
		Transfers: transfers,
		SelfIP:    selfIPStr,
	}
	controlDeps := deps
	controlDeps.Replier = controlHub
	controlDeps.Session = session
	controlDeps.Display = display
	transferDeps := deps
	transferDeps.Replier = transferHub

	go NewDispatcher("control", controlInbound, controlDeps).Run(sigCtx)
	go NewDispatcher("transfer", transferInbound, transferDeps).Run(sigCtx)

	go setUpTLSServer("control", configs.GetControlPort(), serverTLS, controlHub, controlInbound, closeCallbackFor("control", liveness), errChan, sigCtx)
	go setUpTLSServer("transfer", configs.GetTransferPort(), serverTLS, transferHub, transferInbound, closeCallbackFor("transfer", liveness), errChan, sigCtx)

	// 前端 WebSocket 桥，未单独配置指标地址时 /metrics 也挂在这里
	mux := http.NewServeMux()
	mux.Handle("/", bridge)
	if metricsAddr := configs.GetMetricsAddr(); metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		go setUpHTTPServer("metrics", metricsAddr, metricsMux, errChan, sigCtx)
	} else {
		mux.Handle("/metrics", metrics.Handler())
	}
	go setUpHTTPServer("frontend", configs.GetFrontendAddr(), mux, errChan, sigCtx)

	// 局域网发现
	network := "udp4"
	if isIpv6, err := utils.IsIpv6(configs.GetDiscoveryMulticastAddr()); err != nil {
		errChan <- fmt.Errorf("Error parsing discovery multicast address: %w", err)
		return
	} else if isIpv6 {
		network = "udp6"
	}
	go ListenDiscoveryMulticast(network, configs.GetDiscoveryMulticastAddr(), configs.GetDiscoveryPort(), outboundInterface, discovery, errChan, sigCtx)
	go discovery.RunPruner(sigCtx)

	slog.Info("Cooperation core started",
		"selfIP", selfIPStr,
		"app", localApp,
		"controlPort", strconv.Itoa(configs.GetControlPort()),
		"transferPort", strconv.Itoa(configs.GetTransferPort()),
		"frontend", configs.GetFrontendAddr())

	<-sigCtx.Done()
}

// closeCallbackFor 监听端口上连接断开时的回调
//
// 只有传输端口的连接断开才按 IP 反查应用并通知离线，控制端口上的一次性连接断开不代表对端离线
func closeCallbackFor(name string, liveness *Liveness) func(ip string) {
	if name != "transfer" {
		return nil
	}
	return liveness.OnTransportClosed
}
