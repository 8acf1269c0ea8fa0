// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"NoShowInsight/src/storage"
)

// ====================== 邮件处理器实现 ======================

// AttachmentHandler 把目标邮件中的CSV/XLSX附件保存到数据目录
type AttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewAttachmentHandler(subject, dataDir string) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *AttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 保存数据附件，返回保存后的文件路径
// 已处理过或主题不匹配的邮件返回空列表
func (h *AttachmentHandler) Handle(email *Email, logger *storage.Logger) ([]string, error) {
	if email == nil || h.IsProcessed(email.UID) {
		return nil, nil
	}

	if !strings.Contains(strings.ToLower(email.Subject), strings.ToLower(h.TargetSubject)) {
		logger.Debug("跳过主题不匹配的邮件: " + email.Subject)
		return nil, nil
	}

	logger.Info(fmt.Sprintf("处理邮件: %s 发件人: %s 日期: %s",
		email.Subject, email.From, email.Date.Format("2006-01-02 15:04:05")))

	// 确保保存目录存在
	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	var saved []string
	for _, attachment := range email.DataAttachments() {
		// 只保留文件名，避免附件名中的路径跳出数据目录
		name := filepath.Base(filepath.Clean("/" + attachment.Filename))
		filePath := filepath.Join(h.DataDir, name)

		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return saved, fmt.Errorf("保存附件失败: %w", err)
		}
		logger.Info("附件已保存到: " + filePath)
		saved = append(saved, filePath)
	}

	if len(saved) > 0 {
		h.markAsProcessed(email.UID)
	}
	return saved, nil
}

// FetchLatest 检查邮箱并保存最新目标邮件的数据附件，没有新数据时返回空列表
func FetchLatest(mailService MailService, h *AttachmentHandler, logger *storage.Logger) ([]string, error) {
	target, err := CheckAndProcessEmails(mailService, h.TargetSubject, logger)
	if err != nil || target == nil {
		return nil, err
	}
	saved, err := h.Handle(target, logger)
	if err != nil {
		return saved, fmt.Errorf("处理邮件失败(UID:%d): %w", target.UID, err)
	}
	return saved, nil
}
