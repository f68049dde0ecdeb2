package session

import (
	"context"
	"fmt"
	"time"

	"geoquiz/internal/flow"
	"geoquiz/internal/notify"
	"geoquiz/internal/platform/logger"
	"geoquiz/internal/report"
)

const (
	MsgDelivered      = "檔案成功寄出！"
	MsgMailDisabled   = "尚未設定寄信服務，結果未寄出。"
	msgExportFailed   = "檔案處理發生錯誤："
	msgAttachFailed   = "附加檔案失敗："
	msgDeliveryFailed = "發送 email 失敗："
)

// Exporter writes a finished session to a file that Remove later deletes.
type Exporter interface {
	Export(ctx context.Context, st flow.State) (string, error)
	Remove(path string) error
}

// Completer runs the side effects of a finished session and reports them.
type Completer interface {
	Complete(ctx context.Context, st flow.State) flow.Outcome
}

type Finalizer struct {
	exporter  Exporter
	mailer    notify.Mailer
	recipient string
	log       *logger.Logger
	now       func() time.Time
}

// NewFinalizer wires export and delivery. A nil mailer or empty recipient
// turns delivery off; the export still runs and is removed.
func NewFinalizer(exporter Exporter, mailer notify.Mailer, recipient string, log *logger.Logger) *Finalizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Finalizer{exporter: exporter, mailer: mailer, recipient: recipient, log: log, now: time.Now}
}

func Subject(r flow.Result) string {
	return fmt.Sprintf("學生數學學習評量報告 - %d分", r.Score)
}

func Summary(st flow.State) string {
	r := flow.Result{}
	if st.Result != nil {
		r = *st.Result
	}
	contents := "背景調查(無個資)、答題狀況及學習量表"
	if st.Variant == flow.VariantSimple {
		contents = "背景調查(無個資)及答題狀況"
	}
	return fmt.Sprintf("收到一份新的學生評量報告。\n測驗得分：%d 分 (答對 %d/%d)\n附件包含：%s。",
		r.Score, r.Correct, r.Total, contents)
}

// Complete exports, attaches and mails the result exactly once. Failures end
// up as messages on the outcome; the exported file is always removed.
func (f *Finalizer) Complete(ctx context.Context, st flow.State) flow.Outcome {
	out := flow.Outcome{FinishedAt: f.now()}

	path, err := f.exporter.Export(ctx, st)
	if err != nil {
		f.log.Error("export failed", "err", err)
		out.Messages = append(out.Messages, msgExportFailed+err.Error())
		return out
	}
	defer func() {
		if err := f.exporter.Remove(path); err != nil {
			f.log.Warn("remove export failed", "path", path, "err", err)
		}
	}()

	if f.mailer == nil || f.recipient == "" {
		f.log.Warn("mail delivery not configured, result kept only in session")
		out.Messages = append(out.Messages, MsgMailDisabled)
		return out
	}

	att, err := notify.AttachFile(path, report.ContentType)
	if err != nil {
		f.log.Error("attach export failed", "err", err)
		out.Messages = append(out.Messages, msgAttachFailed+err.Error())
		return out
	}

	result := flow.Result{}
	if st.Result != nil {
		result = *st.Result
	}
	err = f.mailer.Send(ctx, notify.Message{
		To:          f.recipient,
		Subject:     Subject(result),
		Body:        Summary(st),
		Attachments: []notify.Attachment{att},
	})
	if err != nil {
		f.log.Error("send report failed", "recipient", f.recipient, "err", err)
		out.Messages = append(out.Messages, msgDeliveryFailed+err.Error())
		return out
	}

	f.log.Info("report delivered", "recipient", f.recipient, "score", result.Score)
	out.Delivered = true
	out.Messages = append(out.Messages, MsgDelivered)
	return out
}
