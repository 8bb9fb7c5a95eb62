// Package mailer 发送通知邮件（SMTP，multipart/alternative 纯文本 + HTML）。
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"homeplanner/backend/config"
)

// ErrInvalidRecipient 收件人地址为空
var ErrInvalidRecipient = errors.New("收件人地址无效")

// Message 一封待发送的邮件
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender 邮件发送接口
// 未配置 SMTP 时返回 (false, nil)，调用方据此决定是否记录发送时间。
type Sender interface {
	Send(ctx context.Context, msg *Message) (delivered bool, err error)
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPSender 基于 go-smtp 的发送实现，带全局速率限制
type SMTPSender struct {
	cfg     config.MailConfig
	limiter *rate.Limiter
	send    sendFunc
	now     func() time.Time
	logger  *zap.Logger
}

// NewSMTPSender 创建 SMTPSender
func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) *SMTPSender {
	perSecond := cfg.MaxPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	send := smtp.SendMail
	if cfg.ImplicitTLS {
		send = smtp.SendMailTLS
	}
	return &SMTPSender{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		send:    send,
		now:     time.Now,
		logger:  logger,
	}
}

// Send 发送邮件
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (bool, error) {
	if !s.cfg.Configured() {
		s.logger.Debug("SMTP 未配置，跳过邮件发送", zap.String("subject", msg.Subject))
		return false, nil
	}
	if strings.TrimSpace(msg.To) == "" {
		return false, ErrInvalidRecipient
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("等待发送配额失败: %w", err)
	}

	body, err := buildMessage(s.cfg.From, s.cfg.FromName, msg, s.now())
	if err != nil {
		return false, err
	}

	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, bytes.NewReader(body)); err != nil {
		return false, fmt.Errorf("SMTP 发送失败: %w", err)
	}

	s.logger.Info("通知邮件已发送", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return true, nil
}

// buildMessage 组装 multipart/alternative 邮件
func buildMessage(from, fromName string, msg *Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: from}})
	h.SetAddressList("To", []*mail.Address{{Name: msg.ToName, Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetMessageID(uuid.New().String() + "@" + domainOf(from))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("创建邮件失败: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("创建邮件正文失败: %w", err)
	}

	if err := writePart(tw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(tw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("写入邮件正文失败: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("写入邮件失败: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, content string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("创建 %s 段失败: %w", contentType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("写入 %s 段失败: %w", contentType, err)
	}
	return w.Close()
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
