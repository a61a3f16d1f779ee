// internal/llm/eventlog.go
package llm

import (
	"sync"
	"time"

	"github.com/Corphon/JadeCompass/internal/utils"
)

// RequestEvent 网络调用前记录
type RequestEvent struct {
	Provider     string    `json:"provider"`
	Method       string    `json:"method"`
	RequestID    string    `json:"requestId"`
	Model        string    `json:"model"`
	BaseURL      string    `json:"baseUrl,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
}

// ResponseEvent 网络调用后记录（成功或失败）
type ResponseEvent struct {
	Provider  string        `json:"provider"`
	Method    string        `json:"method"`
	RequestID string        `json:"requestId"`
	Model     string        `json:"model"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"-"`
	Error     string        `json:"error,omitempty"`
	Response  string        `json:"response,omitempty"`
	Tokens    int           `json:"tokens,omitempty"`
}

// EventLogger LLM调用日志端口
type EventLogger interface {
	LogRequest(ev RequestEvent)
	LogResponse(ev ResponseEvent)
}

// NopEventLogger 丢弃所有事件
type NopEventLogger struct{}

func (NopEventLogger) LogRequest(RequestEvent)   {}
func (NopEventLogger) LogResponse(ResponseEvent) {}

// DefaultDiagnosticCapacity 诊断日志最多保留的条目数
const DefaultDiagnosticCapacity = 100

// LogEntry 一次调用的请求与响应合并记录
type LogEntry struct {
	RequestID    string     `json:"requestId"`
	Provider     string     `json:"provider"`
	Method       string     `json:"method"`
	Model        string     `json:"model"`
	Timestamp    time.Time  `json:"timestamp"`
	SystemPrompt string     `json:"systemPrompt,omitempty"`
	Prompt       string     `json:"prompt,omitempty"`
	Response     string     `json:"response,omitempty"`
	Error        string     `json:"error,omitempty"`
	ResponseTime int64      `json:"responseTimeMs,omitempty"`
	Tokens       int        `json:"tokens,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Succeeded 已完成且没有错误
func (e LogEntry) Succeeded() bool {
	return e.CompletedAt != nil && e.Error == ""
}

// LogFilter 查询条件
type LogFilter struct {
	Provider   string
	Method     string
	OnlyErrors bool
	Limit      int
}

// LogStats 汇总统计
type LogStats struct {
	Total         int            `json:"total"`
	Completed     int            `json:"completed"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	SuccessRate   float64        `json:"successRate"`
	AvgResponseMs int64          `json:"avgResponseMs"`
	MinResponseMs int64          `json:"minResponseMs"`
	MaxResponseMs int64          `json:"maxResponseMs"`
	ByProvider    map[string]int `json:"byProvider"`
}

// DiagnosticLog 会话诊断日志：环形缓冲保存最近的调用，同时转发到全局日志
type DiagnosticLog struct {
	mu            sync.RWMutex
	capacity      int
	includeBodies bool
	entries       []*LogEntry
	index         map[string]*LogEntry
	logger        *utils.Logger
}

// NewDiagnosticLog capacity <= 0 时使用默认值；includeBodies 控制是否保存提示词与响应正文
func NewDiagnosticLog(capacity int, includeBodies bool) *DiagnosticLog {
	if capacity <= 0 {
		capacity = DefaultDiagnosticCapacity
	}
	return &DiagnosticLog{
		capacity:      capacity,
		includeBodies: includeBodies,
		index:         make(map[string]*LogEntry),
		logger:        utils.GetLogger(),
	}
}

// LogRequest 记录请求
func (d *DiagnosticLog) LogRequest(ev RequestEvent) {
	entry := &LogEntry{
		RequestID: ev.RequestID,
		Provider:  ev.Provider,
		Method:    ev.Method,
		Model:     ev.Model,
		Timestamp: ev.Timestamp,
	}
	if d.includeBodies {
		entry.SystemPrompt = ev.SystemPrompt
		entry.Prompt = ev.Prompt
	}

	d.mu.Lock()
	if len(d.entries) >= d.capacity {
		oldest := d.entries[0]
		delete(d.index, oldest.RequestID)
		d.entries = d.entries[1:]
	}
	d.entries = append(d.entries, entry)
	d.index[ev.RequestID] = entry
	d.mu.Unlock()

	fields := map[string]interface{}{
		"provider":   ev.Provider,
		"method":     ev.Method,
		"request_id": ev.RequestID,
		"model":      ev.Model,
		"base_url":   ev.BaseURL,
	}
	if d.includeBodies {
		fields["system_prompt"] = ev.SystemPrompt
		fields["prompt"] = ev.Prompt
	}
	d.logger.Info("LLM request", fields)
}

// LogResponse 记录响应并与请求合并
func (d *DiagnosticLog) LogResponse(ev ResponseEvent) {
	ms := ev.Elapsed.Milliseconds()
	completed := ev.Timestamp

	d.mu.Lock()
	entry, ok := d.index[ev.RequestID]
	if !ok {
		// 请求已被淘汰，单独保留响应
		entry = &LogEntry{RequestID: ev.RequestID, Provider: ev.Provider, Method: ev.Method, Model: ev.Model, Timestamp: ev.Timestamp}
		if len(d.entries) >= d.capacity {
			delete(d.index, d.entries[0].RequestID)
			d.entries = d.entries[1:]
		}
		d.entries = append(d.entries, entry)
		d.index[ev.RequestID] = entry
	}
	entry.Error = ev.Error
	entry.ResponseTime = ms
	entry.Tokens = ev.Tokens
	entry.CompletedAt = &completed
	if d.includeBodies {
		entry.Response = ev.Response
	}
	d.mu.Unlock()

	fields := map[string]interface{}{
		"provider":   ev.Provider,
		"method":     ev.Method,
		"request_id": ev.RequestID,
		"model":      ev.Model,
		"elapsed_ms": ms,
	}
	if ev.Tokens > 0 {
		fields["tokens"] = ev.Tokens
	}
	if d.includeBodies && ev.Response != "" {
		fields["response"] = ev.Response
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
		d.logger.Warn("LLM response failed", fields)
		return
	}
	d.logger.Info("LLM response", fields)
}

// Logs 按时间倒序返回匹配的条目副本
func (d *DiagnosticLog) Logs(filter LogFilter) []LogEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]LogEntry, 0, len(d.entries))
	for i := len(d.entries) - 1; i >= 0; i-- {
		e := d.entries[i]
		if filter.Provider != "" && e.Provider != filter.Provider {
			continue
		}
		if filter.Method != "" && e.Method != filter.Method {
			continue
		}
		if filter.OnlyErrors && e.Error == "" {
			continue
		}
		out = append(out, *e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Stats 汇总成功率与响应时间
func (d *DiagnosticLog) Stats() LogStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := LogStats{Total: len(d.entries), ByProvider: map[string]int{}}
	var sum int64
	for _, e := range d.entries {
		stats.ByProvider[e.Provider]++
		if e.CompletedAt == nil {
			continue
		}
		stats.Completed++
		if e.Error == "" {
			stats.Successes++
		} else {
			stats.Failures++
		}
		sum += e.ResponseTime
		if stats.Completed == 1 || e.ResponseTime < stats.MinResponseMs {
			stats.MinResponseMs = e.ResponseTime
		}
		if e.ResponseTime > stats.MaxResponseMs {
			stats.MaxResponseMs = e.ResponseTime
		}
	}
	if stats.Completed > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Completed)
		stats.AvgResponseMs = sum / int64(stats.Completed)
	}
	return stats
}

// Clear 清空缓冲
func (d *DiagnosticLog) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
	d.index = make(map[string]*LogEntry)
}
