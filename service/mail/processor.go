package mail

import (
	"context"
	"strings"

	"OpsFlow/logger"
	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
	"OpsFlow/tools/decode"
	errs "OpsFlow/tools/errs"
)

type jobData struct {
	To           []string       `json:"to"` // weak decode accepts a single string too
	Subject      string         `json:"subject"`
	HTML         string         `json:"html"`
	Text         string         `json:"text"`
	Template     string         `json:"template"`
	TemplateData map[string]any `json:"templateData"`
	UserID       string         `json:"userId"`
}

// Processor turns email jobs into SMTP sends. When the job names a
// requesting user, the outcome is pushed back as a realtime
// notification.
type Processor struct {
	sender   Sender
	notifier *notify.Dispatcher
}

func NewProcessor(sender Sender, notifier *notify.Dispatcher) *Processor {
	return &Processor{sender: sender, notifier: notifier}
}

func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	d, err := decode.Struct[jobData](job.Payload)
	if err != nil {
		return errs.ErrValidation.WrapMsg("decode email payload", "err", err)
	}
	if len(d.To) == 0 {
		return errs.ErrValidation.WrapMsg("email job missing recipient")
	}

	logger.Infof("[mail] processing job %s to=%s subject=%q", job.ID, strings.Join(d.To, ","), d.Subject)

	html, text := d.HTML, d.Text
	if d.Template != "" {
		html, text, err = RenderTemplate(d.Template, d.TemplateData)
		if err != nil {
			p.notifyOutcome(ctx, d, job.ID, err)
			return err
		}
	}

	msg := Message{To: d.To, Subject: d.Subject, HTML: html, Text: text}
	if err := p.sender.Send(ctx, msg); err != nil {
		logger.Errorf("[mail] send failed job=%s to=%s: %v", job.ID, strings.Join(d.To, ","), err)
		p.notifyOutcome(ctx, d, job.ID, err)
		return err
	}

	logger.Infof("[mail] email sent: job=%s to=%s", job.ID, strings.Join(d.To, ","))
	p.notifyOutcome(ctx, d, job.ID, nil)
	return nil
}

// notifyOutcome is best-effort; it never affects the job's result.
func (p *Processor) notifyOutcome(ctx context.Context, d *jobData, jobID string, sendErr error) {
	if d.UserID == "" || p.notifier == nil {
		return
	}

	transient := false
	opts := notify.Options{Channels: []string{"websocket"}, Persistent: &transient}

	var err error
	if sendErr == nil {
		_, err = p.notifier.Notify(ctx, d.UserID, "success", "Email Sent",
			`Email "`+d.Subject+`" sent successfully`, opts)
	} else {
		_, err = p.notifier.Notify(ctx, d.UserID, "error", "Email Failed",
			`Failed to send email "`+d.Subject+`"`, opts)
	}
	if err != nil {
		logger.Warnf("[mail] outcome notify user=%s job=%s: %v", d.UserID, jobID, err)
	}
}
