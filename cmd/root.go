package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/somebottle/cooperation-daemon/configs"
	"github.com/somebottle/cooperation-daemon/services"
	"github.com/somebottle/cooperation-daemon/utils"
	"github.com/spf13/cobra"
)

const AppVersion = "1.0.0"

// 命令行选项，默认值来自环境变量
var (
	envFile          string
	workingDir       string
	logDebug         bool
	logFilePath      string
	logFileMaxSize   string
	logFileMaxHist   string
	appName          string
	pinCode          string
	needConfirm      bool
	controlPort      string
	transferPort     string
	frontendAddr     string
	metricsAddr      string
	discoveryAddr    string
	discoveryPort    string
	receiveDir       string
	offlineGraceSecs string
)

// 日志文件写入器，在 PersistentPreRunE 中创建
var logFileWriter *utils.LogWriter

var rootCmd = &cobra.Command{
	Use:           "cooperation-daemon",
	Short:         "Cross-device cooperation daemon",
	Long:          "Cross-device cooperation daemon: peer login, heartbeats, screen sharing negotiation and file transfer",
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setUpEnvironment()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFileWriter != nil {
			logFileWriter.Close()
		}
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Exited with error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// .env 文件需要在读取环境变量默认值之前加载
	envFile = os.Getenv("COOP_DAEMON_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := configs.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file %s: %v\n", envFile, err)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&workingDir, "work-dir", os.Getenv("COOP_DAEMON_WORK_DIR"), "Working directory (default to executable's directory)")
	flags.BoolVar(&logDebug, "debug", os.Getenv("COOP_DAEMON_LOG_DEBUG") == "1", "Enable debug logging")
	flags.StringVar(&logFilePath, "log-file", os.Getenv("COOP_DAEMON_LOG_FILE_PATH"), "Log file path")
	flags.StringVar(&logFileMaxSize, "log-file-max-size", os.Getenv("COOP_DAEMON_LOG_FILE_MAX_SIZE"), "Log file max size in Bytes before rotation")
	flags.StringVar(&logFileMaxHist, "log-file-max-historical", os.Getenv("COOP_DAEMON_LOG_FILE_MAX_HISTORICAL"), "Max number of historical log files to keep")

	rflags := rootCmd.Flags()
	rflags.StringVar(&appName, "app", os.Getenv("COOP_DAEMON_APP_NAME"), "Local application name")
	rflags.StringVar(&pinCode, "pin", os.Getenv("COOP_DAEMON_PIN"), "Pin code required for peer login")
	rflags.BoolVar(&needConfirm, "need-confirm", os.Getenv("COOP_DAEMON_NEED_CONFIRM") == "1", "Require confirmation for logins without pin")
	rflags.StringVar(&controlPort, "control-port", os.Getenv("COOP_DAEMON_CONTROL_PORT"), "Control port (login / ping / share)")
	rflags.StringVar(&transferPort, "transfer-port", os.Getenv("COOP_DAEMON_TRANSFER_PORT"), "Bulk transfer port")
	rflags.StringVar(&frontendAddr, "frontend-addr", os.Getenv("COOP_DAEMON_FRONTEND_ADDR"), "Listen address of the front-end websocket bridge")
	rflags.StringVar(&metricsAddr, "metrics-addr", os.Getenv("COOP_DAEMON_METRICS_ADDR"), "Listen address of the metrics endpoint (served on the bridge if empty)")
	rflags.StringVar(&discoveryAddr, "discovery-addr", os.Getenv("COOP_DAEMON_DISCOVERY_ADDR"), "Discovery multicast address")
	rflags.StringVar(&discoveryPort, "discovery-port", os.Getenv("COOP_DAEMON_DISCOVERY_PORT"), "Discovery multicast port")
	rflags.StringVar(&receiveDir, "receive-dir", os.Getenv("COOP_DAEMON_RECEIVE_DIR"), "Directory for received files")
	rflags.StringVar(&offlineGraceSecs, "offline-grace", os.Getenv("COOP_DAEMON_OFFLINE_GRACE"), "Seconds to wait before reporting a peer offline")

	rootCmd.AddCommand(autostartCmd)
}

// setUpEnvironment 切换工作目录并初始化全局日志记录器
func setUpEnvironment() error {
	dir, err := utils.ResolveWorkDir(workingDir)
	if err != nil {
		return fmt.Errorf("Failed to resolve working directory: %w", err)
	}
	workingDir = dir
	// 确保如日志的相对路径能正常解析
	if err := os.Chdir(workingDir); err != nil {
		return fmt.Errorf("Failed to change working directory to %s: %w", workingDir, err)
	}

	if logFilePath != "" {
		configs.SetLogFilePath(logFilePath)
	}
	if logFileMaxSize != "" {
		size, err := strconv.ParseInt(logFileMaxSize, 10, 64)
		if err != nil || size <= 0 {
			return fmt.Errorf("Invalid log file max size, should be a positive integer: %s", logFileMaxSize)
		}
		configs.SetLogMaxSizeBytes(size)
	}
	if logFileMaxHist != "" {
		count, err := strconv.ParseInt(logFileMaxHist, 10, 32)
		if err != nil || count < 0 {
			return fmt.Errorf("Invalid log file max historical count, should be a non-negative integer: %s", logFileMaxHist)
		}
		configs.SetLogMaxHistoricalFiles(int(count))
	}
	configs.SetLogDebug(logDebug)
	logLevel := slog.LevelInfo
	if configs.IsLogDebug() {
		logLevel = slog.LevelDebug
	}
	writer, err := utils.NewLogWriter(configs.GetLogFilePath(), configs.GetLogMaxSizeBytes(), configs.GetLogMaxHistoricalFiles())
	if err != nil {
		return fmt.Errorf("Failed to set up log file writer: %w", err)
	}
	logFileWriter = writer
	// 同时写入 STDOUT 和日志文件
	logger := slog.New(slog.NewTextHandler(
		io.MultiWriter(logFileWriter, os.Stdout),
		&slog.HandlerOptions{
			Level: logLevel,
		},
	))
	slog.SetDefault(logger)
	return nil
}

func parsePort(name string, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("Invalid value for '%s', should be a port number: %s", name, value)
	}
	return port, nil
}

// applyDaemonConfig 把命令行选项写入 configs
func applyDaemonConfig() error {
	if appName != "" {
		configs.SetLocalAppName(appName)
	}
	configs.SetPinCode(pinCode)
	configs.SetNeedConfirm(needConfirm)
	if controlPort != "" {
		port, err := parsePort("control-port", controlPort)
		if err != nil {
			return err
		}
		configs.SetControlPort(port)
	}
	if transferPort != "" {
		port, err := parsePort("transfer-port", transferPort)
		if err != nil {
			return err
		}
		configs.SetTransferPort(port)
	}
	if configs.GetControlPort() == configs.GetTransferPort() {
		return fmt.Errorf("Control port and transfer port must differ: %d", configs.GetControlPort())
	}
	if frontendAddr != "" {
		configs.SetFrontendAddr(frontendAddr)
	}
	configs.SetMetricsAddr(metricsAddr)
	if discoveryAddr != "" {
		configs.SetDiscoveryMulticastAddr(discoveryAddr)
	}
	if discoveryPort != "" {
		if _, err := parsePort("discovery-port", discoveryPort); err != nil {
			return err
		}
		configs.SetDiscoveryPort(discoveryPort)
	}
	if receiveDir != "" {
		configs.SetReceiveDir(receiveDir)
	}
	if offlineGraceSecs != "" {
		secs, err := strconv.ParseInt(offlineGraceSecs, 10, 32)
		if err != nil || secs < 0 {
			return fmt.Errorf("Invalid value for 'offline-grace', should be a non-negative integer: %s", offlineGraceSecs)
		}
		configs.SetOfflineGrace(time.Duration(secs) * time.Second)
	}
	return nil
}

// runDaemon 启动守护进程直到收到中断信号或出现致命错误
func runDaemon() error {
	// 中断信号处理
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Cooperation daemon starting...", "version", AppVersion)
	slog.Info("Working directory", "dir", workingDir)

	if err := applyDaemonConfig(); err != nil {
		return err
	}
	slog.Debug("Daemon config",
		"app", configs.GetLocalAppName(),
		"controlPort", configs.GetControlPort(),
		"transferPort", configs.GetTransferPort(),
		"frontendAddr", configs.GetFrontendAddr(),
		"discovery", configs.GetDiscoveryMulticastAddr()+":"+configs.GetDiscoveryPort(),
		"receiveDir", configs.GetReceiveDir(),
		"needConfirm", configs.IsNeedConfirm(),
		"pinSet", configs.GetPinCode() != "")

	// 获得首选出站 IP 地址以及相应的网络接口
	selfIP, err := utils.GetOutboundIP()
	if err != nil {
		// 没有默认路由时退回到第一个可用的 IPv4 地址
		slog.Warn("Failed to get outbound IP address, falling back to first interface address", "error", err)
		selfIP = net.ParseIP(utils.GetFirstIP())
	}
	outboundInterface, err := utils.GetInterfaceByIP(selfIP)
	if err != nil {
		return fmt.Errorf("Error getting outbound network interface: %w", err)
	}
	if outboundInterface == nil {
		return fmt.Errorf("No network interface found for IP address %s", selfIP.String())
	}
	slog.Info("Outbound IP address", "ip", selfIP.String())
	slog.Info("Using network interface", "interface", outboundInterface.Name)

	// 出现严重异常时的通知通道
	errChan := make(chan error, 1)
	go services.SetUpCooperationCore(selfIP, outboundInterface, errChan, sigCtx)

	select {
	case err := <-errChan:
		return err
	case <-sigCtx.Done():
		slog.Info("Shutting down gracefully...")
		// 等待一会儿以确保所有 goroutine 都能退出
		time.Sleep(2 * time.Second)
		return nil
	}
}
