package notify

import (
	"context"
	"encoding/json"
	"time"

	"OpsFlow/logger"
	"OpsFlow/service/chat"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
	"OpsFlow/tools/decode"
	errs "OpsFlow/tools/errs"
)

const (
	notificationTTL = 24 * time.Hour
	historyCap      = 100
)

// Gateway is the slice of the realtime server the processor pushes
// through.
type Gateway interface {
	SendNotification(userID string, n chat.Notification) bool
}

type jobData struct {
	UserID     string         `json:"userId"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata"`
	Channels   []string       `json:"channels"`
	Persistent *bool          `json:"persistent"`
}

// Processor delivers notification jobs across their channels and
// persists them for the history API.
type Processor struct {
	store   *storage.Store
	gateway Gateway
	users   chat.UserDirectory
	jobs    Enqueuer
	clock   func() time.Time
}

func NewProcessor(store *storage.Store, gateway Gateway, users chat.UserDirectory, jobs Enqueuer) *Processor {
	return &Processor{store: store, gateway: gateway, users: users, jobs: jobs, clock: time.Now}
}

// Process handles one notification job. A returned error sends the job
// through the queue's retry path.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	d, err := decode.Struct[jobData](job.Payload)
	if err != nil {
		return errs.ErrValidation.WrapMsg("decode notification payload", "err", err)
	}

	channels := d.Channels
	if len(channels) == 0 {
		channels = []string{"websocket"}
	}
	persistent := d.Persistent == nil || *d.Persistent

	n := chat.Notification{
		ID:        "notification_" + job.ID,
		Type:      d.Type,
		Title:     d.Title,
		Message:   d.Message,
		UserID:    d.UserID,
		Timestamp: p.clock(),
		Metadata:  d.Metadata,
	}

	logger.Infof("[notify] processing job %s user=%s type=%s title=%q", job.ID, d.UserID, d.Type, d.Title)

	for _, ch := range channels {
		if err := p.sendToChannel(ctx, ch, n); err != nil {
			return err
		}
	}

	if persistent {
		if err := p.persist(ctx, n); err != nil {
			return err
		}
	}

	logger.Infof("[notify] notification sent: %s", job.ID)
	return nil
}

func (p *Processor) sendToChannel(ctx context.Context, channel string, n chat.Notification) error {
	switch channel {
	case "websocket":
		// offline users simply miss the realtime push; the persisted
		// record is what they catch up from
		if !p.gateway.SendNotification(n.UserID, n) {
			logger.Debugf("[notify] user %s not connected, websocket push skipped", n.UserID)
		}
		return nil
	case "email":
		return p.enqueueEmail(ctx, n)
	case "sms":
		logger.Infof("[notify] sms notification sent: %s", n.ID)
		return nil
	case "push":
		logger.Infof("[notify] push notification sent: %s", n.ID)
		return nil
	default:
		logger.Warnf("[notify] unsupported channel: %s", channel)
		return nil
	}
}

// enqueueEmail hands the email channel off to the email queue. The
// notification job does not wait for the email to go out.
func (p *Processor) enqueueEmail(ctx context.Context, n chat.Notification) error {
	user, err := p.users.LookupUser(ctx, n.UserID)
	if err != nil {
		return errs.ErrNotFound.WrapMsg("email channel user lookup", "userId", n.UserID, "err", err)
	}
	_, err = p.jobs.AddJob(ctx, queue.QueueEmail, "notification_email", map[string]any{
		"to":       user.Email,
		"subject":  n.Title,
		"template": "notification",
		"templateData": map[string]any{
			"title":     n.Title,
			"message":   n.Message,
			"type":      n.Type,
			"timestamp": n.Timestamp,
		},
	}, queue.JobOptions{})
	return err
}

// persist writes the blob and prepends the id to the user's capped
// history list.
func (p *Processor) persist(ctx context.Context, n chat.Notification) error {
	blob, err := json.Marshal(n)
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal notification", "err", err)
	}

	b := p.store.Backend()
	if err := b.Set(ctx, storage.KeyNotification(n.ID), string(blob), notificationTTL); err != nil {
		return err
	}
	listKey := storage.KeyNotificationList(n.UserID)
	if err := b.LPush(ctx, listKey, n.ID); err != nil {
		return err
	}
	return b.LTrim(ctx, listKey, 0, historyCap-1)
}

// History returns the user's stored notifications, newest first.
// Expired blobs are skipped.
func History(ctx context.Context, store *storage.Store, userID string, limit int) ([]chat.Notification, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	ids, err := store.Backend().LRange(ctx, storage.KeyNotificationList(userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	out := make([]chat.Notification, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := store.Backend().Get(ctx, storage.KeyNotification(id))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var n chat.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
