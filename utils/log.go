package utils

// 日志文件写入，按大小轮转

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrLogWriterClosed 写入器已关闭
var ErrLogWriterClosed = errors.New("log writer is closed")

// LogWriter 按大小轮转的日志写入器，可被多个协程同时写入
//
// 当前日志写入 filePath，历史日志依次为 <base>.1.log, <base>.2.log ...，序号越大越旧
type LogWriter struct {
	mutex    sync.Mutex
	filePath string
	// 不含扩展名的文件路径，用于拼接历史日志名
	basePath string
	maxSize  int64
	// 最多保留的历史日志数，0 表示不限制
	maxHistory int
	file       *os.File
	// 当前文件已写入的字节数
	size   int64
	closed bool
}

// NewLogWriter 打开 (或创建) 日志文件
//
// filePath: 当前日志文件路径
// maxSize: 单个日志文件的最大字节数
// maxHistory: 最多保留的历史日志数，0 表示不限制
func NewLogWriter(filePath string, maxSize int64, maxHistory int) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("Failed to create log directory: %w", err)
	}
	lw := &LogWriter{
		filePath:   filePath,
		basePath:   strings.TrimSuffix(filePath, filepath.Ext(filePath)),
		maxSize:    maxSize,
		maxHistory: maxHistory,
	}
	if err := lw.open(); err != nil {
		return nil, err
	}
	return lw, nil
}

func (lw *LogWriter) open() error {
	file, err := os.OpenFile(lw.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("Failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("Failed to get log file info: %w", err)
	}
	lw.file = file
	lw.size = info.Size()
	return nil
}

func (lw *LogWriter) historyPath(index int) string {
	return lw.basePath + "." + strconv.Itoa(index) + ".log"
}

// historyIndexes 找出现有历史日志的序号，升序
func (lw *LogWriter) historyIndexes() []int {
	matches, _ := filepath.Glob(lw.basePath + ".*.log")
	indexes := make([]int, 0, len(matches))
	prefix := lw.basePath + "."
	for _, m := range matches {
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(m, prefix), ".log"))
		if err != nil || index <= 0 {
			continue
		}
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes
}

// rotate 当前日志变为 1 号历史日志，其余历史日志序号加 1，超出数量的删除
func (lw *LogWriter) rotate() error {
	lw.file.Close()
	lw.file = nil
	indexes := lw.historyIndexes()
	for i := len(indexes) - 1; i >= 0; i-- {
		index := indexes[i]
		if lw.maxHistory > 0 && index+1 > lw.maxHistory {
			if err := os.Remove(lw.historyPath(index)); err != nil {
				return fmt.Errorf("Failed to delete old log file: %w", err)
			}
			continue
		}
		if err := os.Rename(lw.historyPath(index), lw.historyPath(index+1)); err != nil {
			return fmt.Errorf("Failed to shift log file: %w", err)
		}
	}
	if lw.maxHistory == 0 || lw.maxHistory >= 1 {
		if err := os.Rename(lw.filePath, lw.historyPath(1)); err != nil {
			return fmt.Errorf("Failed to rotate current log file: %w", err)
		}
	}
	return lw.open()
}

// Write 实现 io.Writer，写入前超过最大大小则先轮转
func (lw *LogWriter) Write(p []byte) (int, error) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	if lw.closed {
		return 0, ErrLogWriterClosed
	}
	if lw.file == nil {
		// 上次轮转失败，重新打开
		if err := lw.open(); err != nil {
			return 0, err
		}
	}
	if lw.size > 0 && lw.size+int64(len(p)) > lw.maxSize {
		if err := lw.rotate(); err != nil {
			return 0, fmt.Errorf("Failed to rotate logs: %w", err)
		}
	}
	n, err := lw.file.Write(p)
	lw.size += int64(n)
	return n, err
}

// Close 关闭日志文件，重复调用无副作用
func (lw *LogWriter) Close() error {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	if lw.closed {
		return nil
	}
	lw.closed = true
	if lw.file == nil {
		return nil
	}
	return lw.file.Close()
}
