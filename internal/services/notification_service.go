// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// SendClosingPaidEmail tells a professional their commission period was
// closed and paid.
func (s *NotificationService) SendClosingPaidEmail(professional *models.Professional, batch *models.ClosingBatch) error {
	data := map[string]interface{}{
		"Name":         professional.FullName,
		"Total":        batch.TotalAmount.StringFixed(2),
		"EntryCount":   batch.EntryCount,
		"Reference":    batch.PayoutReference,
		"PeriodEnd":    batch.PeriodEnd.Format("02/01/2006"),
		"DashboardURL": fmt.Sprintf("%s/commissions", s.config.Frontend.BaseURL),
	}

	subject := "Suas comissões foram pagas"
	body, err := s.renderTemplate(closingPaidTemplate, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(professional.Email, subject, body)
}

// SendOverallocationAlert warns the clinic admin that a sale could not
// finalize because commissions plus fee exceed the sale total.
func (s *NotificationService) SendOverallocationAlert(adminEmail string, overalloc *SplitOverallocationError) error {
	data := map[string]interface{}{
		"SaleID":     overalloc.SaleID.String(),
		"LineID":     overalloc.LineID.String(),
		"RuleID":     overalloc.RuleID.String(),
		"Gross":      overalloc.TotalGross.StringFixed(2),
		"Allocated":  overalloc.Allocated.StringFixed(2),
		"ConsoleURL": fmt.Sprintf("%s/settings/commission-rules", s.config.Frontend.BaseURL),
	}

	subject := "Venda bloqueada: regras de comissão excedem o total"
	body, err := s.renderTemplate(overallocationTemplate, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(adminEmail, subject, body)
}

const closingPaidTemplate = `
<p>Olá {{.Name}},</p>
<p>O fechamento das suas comissões foi concluído.</p>
<ul>
  <li>Total pago: R$ {{.Total}}</li>
  <li>Lançamentos: {{.EntryCount}}</li>
  <li>Período até: {{.PeriodEnd}}</li>
  <li>Referência da transferência: {{.Reference}}</li>
</ul>
<p><a href="{{.DashboardURL}}">Ver extrato completo</a></p>
`

const overallocationTemplate = `
<p>A venda {{.SaleID}} não pôde ser finalizada.</p>
<p>As comissões configuradas somadas à taxa da plataforma ({{.Allocated}})
excedem o total da venda ({{.Gross}}).</p>
<p>Item: {{.LineID}} / Regra: {{.RuleID}}</p>
<p><a href="{{.ConsoleURL}}">Corrigir regras de comissão</a></p>
`

func (s *NotificationService) renderTemplate(templateStr string, data map[string]interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPUsername == "" {
		// Email not configured; skip silently in development.
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body)

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, []byte(msg))
}
