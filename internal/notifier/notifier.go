package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"sector-strength-sentry/pkg/types"
)

// Interface 通知接口
type Interface interface {
	SendFixReport(report *types.FixReport) error
	SendMonitoringAlert(status *types.MonitoringStatus) error
}

// NeedsAlert 计算状态异常或存在缺失数据的板块时需要预警
func NeedsAlert(status *types.MonitoringStatus) bool {
	return status != nil && !status.Healthy()
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content)
	if padding < 0 {
		padding = 0
	}
	return padding
}

// formatDuration 格式化耗时为中文描述
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1f秒", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.0f分钟", d.Minutes())
	}
	return fmt.Sprintf("%.1f小时", d.Hours())
}

func fixTarget(req types.FixRequest) string {
	if req.SectorID != "" {
		return "板块ID " + req.SectorID
	}
	return "板块 " + req.SectorName
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct {
	out io.Writer
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

func (cn *ConsoleNotifier) SendFixReport(report *types.FixReport) error {
	lines := []string{
		fmt.Sprintf("修复对象: %s", fixTarget(report.Request)),
		fmt.Sprintf("修复天数: %d  覆盖已有数据: %t", report.Request.Days, report.Request.Overwrite),
	}

	title := "🔧 数据修复完成"
	if !report.Success {
		title = "❌ 数据修复失败"
		lines = append(lines, "失败原因: "+report.Message)
	} else if report.Outcome != nil {
		lines = append(lines,
			fmt.Sprintf("成功: %d  失败: %d  耗时: %.1f秒",
				report.Outcome.SuccessCount, report.Outcome.FailedCount, report.Outcome.DurationSeconds))
		for _, sector := range report.Outcome.Sectors {
			if !sector.Success {
				lines = append(lines, fmt.Sprintf("  ✗ %s(%s): %s", sector.SectorName, sector.SectorID, sector.Error))
			}
		}
	}

	cn.printBox(title, lines)
	return nil
}

func (cn *ConsoleNotifier) SendMonitoringAlert(status *types.MonitoringStatus) error {
	lines := []string{
		fmt.Sprintf("计算状态: %s", status.CalculationStatus),
		fmt.Sprintf("数据完整性: %d/%d", status.DataIntegrity.SectorsWithData, status.DataIntegrity.TotalSectors),
	}
	if status.LastCalculationTime != nil {
		lines = append(lines, "最近计算: "+status.LastCalculationTime.Local().Format("2006-01-02 15:04:05"))
	}
	for _, missing := range status.DataIntegrity.MissingSectors {
		lines = append(lines, fmt.Sprintf("  缺失: %s(%s)", missing.SectorName, missing.SectorID))
	}

	cn.printBox("🚨 板块分类计算异常", lines)
	return nil
}

// printBox 输出带边框的消息
func (cn *ConsoleNotifier) printBox(title string, lines []string) {
	const width = 60

	fmt.Fprintln(cn.out)
	fmt.Fprintln(cn.out, "╔"+strings.Repeat("═", width)+"╗")
	fmt.Fprintf(cn.out, "║ %s%s║\n", title, strings.Repeat(" ", safePadding(title, width-1)))
	fmt.Fprintln(cn.out, "║"+strings.Repeat(" ", width)+"║")
	for _, line := range lines {
		fmt.Fprintf(cn.out, "║ %s%s║\n", line, strings.Repeat(" ", safePadding(line, width-1)))
	}
	fmt.Fprintln(cn.out, "╚"+strings.Repeat("═", width)+"╝")
}

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	client     *resty.Client
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewNotifier 根据钉钉配置选择通知方式，未配置webhook时输出到控制台
func NewNotifier(config types.DingTalkConfig) Interface {
	if config.WebhookURL == "" {
		zap.L().Info("🔧 未配置钉钉Webhook URL，使用控制台输出模式")
		return NewConsoleNotifier()
	}
	return NewDingTalkNotifier(config.WebhookURL, config.Secret)
}

func NewDingTalkNotifier(webhookURL, secret string) *DingTalkNotifier {
	if secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

func (dtn *DingTalkNotifier) SendFixReport(report *types.FixReport) error {
	title := "板块分类数据修复完成"
	if !report.Success {
		title = "板块分类数据修复失败"
	}
	return dtn.sendDingTalkMessage(title, dtn.buildFixMarkdown(title, report))
}

func (dtn *DingTalkNotifier) SendMonitoringAlert(status *types.MonitoringStatus) error {
	title := "板块分类计算异常"
	return dtn.sendDingTalkMessage(title, dtn.buildMonitoringMarkdown(title, status))
}

// generateSignature 生成加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	// HMAC-SHA256签名
	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL(now time.Time) string {
	if dtn.secret == "" {
		return dtn.webhookURL
	}

	timestamp := now.UnixMilli()

	// 添加timestamp和sign参数
	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, url.QueryEscape(dtn.generateSignature(timestamp)))
}

// buildFixMarkdown 构建修复报告的Markdown内容
func (dtn *DingTalkNotifier) buildFixMarkdown(title string, report *types.FixReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "- **修复对象**: %s\n", fixTarget(report.Request))
	fmt.Fprintf(&b, "- **修复天数**: %d\n", report.Request.Days)
	if report.SessionID != "" {
		fmt.Fprintf(&b, "- **会话ID**: %s\n", report.SessionID)
	}
	fmt.Fprintf(&b, "- **覆盖已有数据**: %t\n", report.Request.Overwrite)
	if !report.FinishedAt.IsZero() && !report.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **会话耗时**: %s\n", formatDuration(report.FinishedAt.Sub(report.StartedAt)))
	}

	if !report.Success {
		fmt.Fprintf(&b, "- **失败原因**: %s\n", report.Message)
		return b.String()
	}

	if report.Outcome != nil {
		fmt.Fprintf(&b, "- **成功板块**: %d\n", report.Outcome.SuccessCount)
		fmt.Fprintf(&b, "- **失败板块**: %d\n", report.Outcome.FailedCount)

		failed := 0
		for _, sector := range report.Outcome.Sectors {
			if sector.Success {
				continue
			}
			if failed == 0 {
				b.WriteString("\n**失败明细**\n\n")
			}
			failed++
			fmt.Fprintf(&b, "%d. %s(%s): %s\n", failed, sector.SectorName, sector.SectorID, sector.Error)
		}
	}

	return b.String()
}

// buildMonitoringMarkdown 构建监控预警的Markdown内容
func (dtn *DingTalkNotifier) buildMonitoringMarkdown(title string, status *types.MonitoringStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### 🚨 %s\n\n", title)
	fmt.Fprintf(&b, "- **计算状态**: %s\n", status.CalculationStatus)
	fmt.Fprintf(&b, "- **今日计算次数**: %d\n", status.TodayCalculationCount)
	fmt.Fprintf(&b, "- **上次耗时**: %dms\n", status.LastDurationMs)
	fmt.Fprintf(&b, "- **数据完整性**: %d/%d\n", status.DataIntegrity.SectorsWithData, status.DataIntegrity.TotalSectors)
	if status.LastCalculationTime != nil {
		fmt.Fprintf(&b, "- **最近计算**: %s\n", status.LastCalculationTime.Local().Format("2006-01-02 15:04:05"))
	}

	if len(status.DataIntegrity.MissingSectors) > 0 {
		b.WriteString("\n**缺失数据的板块**\n\n")
		for i, missing := range status.DataIntegrity.MissingSectors {
			fmt.Fprintf(&b, "%d. %s(%s)\n", i+1, missing.SectorName, missing.SectorID)
		}
	}

	return b.String()
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(title, content string) error {
	// 构建消息体
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false, // 不@所有人，避免过度打扰
		},
	}

	var dingResp DingTalkResponse
	resp, err := dtn.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		SetResult(&dingResp).
		Post(dtn.buildSignedURL(time.Now()))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("HTTP状态码错误: %d", resp.StatusCode())
	}

	// 检查返回结果
	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	zap.L().Info("✅ 钉钉消息发送成功", zap.String("title", title))
	return nil
}
