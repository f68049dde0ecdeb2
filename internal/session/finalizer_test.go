package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geoquiz/internal/flow"
	"geoquiz/internal/notify"
)

type fakeExporter struct {
	dir       string
	exportErr error
	removed   []string
	exported  string
}

func (f *fakeExporter) Export(ctx context.Context, st flow.State) (string, error) {
	if f.exportErr != nil {
		return "", f.exportErr
	}
	f.exported = filepath.Join(f.dir, "數學評量結果_20260101_000000.xlsx")
	return f.exported, os.WriteFile(f.exported, []byte("xlsx"), 0o600)
}

func (f *fakeExporter) Remove(path string) error {
	f.removed = append(f.removed, path)
	return os.Remove(path)
}

type mockMailer struct {
	sendFn func(ctx context.Context, msg notify.Message) error
	sent   []notify.Message
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	m.sent = append(m.sent, msg)
	if m.sendFn == nil {
		return nil
	}
	return m.sendFn(ctx, msg)
}

func finishedState() flow.State {
	return flow.State{
		Variant: flow.VariantExtended,
		Stage:   flow.StageFinalize,
		Result:  &flow.Result{Score: 80, Correct: 8, Total: 10},
	}
}

func TestFinalizerDeliversAndRemovesFile(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	mailer := &mockMailer{}
	f := NewFinalizer(exp, mailer, "reports@example.com", nil)

	out := f.Complete(context.Background(), finishedState())
	if !out.Delivered || len(out.Messages) != 1 || out.Messages[0] != MsgDelivered {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "reports@example.com" || msg.Subject != "學生數學學習評量報告 - 80分" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Body, "測驗得分：80 分 (答對 8/10)") {
		t.Fatalf("summary missing score: %q", msg.Body)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != filepath.Base(exp.exported) {
		t.Fatalf("unexpected attachments %+v", msg.Attachments)
	}
	if _, err := os.Stat(exp.exported); !os.IsNotExist(err) {
		t.Fatalf("export file should be removed, stat err=%v", err)
	}
}

func TestFinalizerDeliveryFailureStillCompletes(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	mailer := &mockMailer{sendFn: func(ctx context.Context, msg notify.Message) error {
		return notify.ErrDeliveryFailed
	}}
	f := NewFinalizer(exp, mailer, "reports@example.com", nil)

	out := f.Complete(context.Background(), finishedState())
	if out.Delivered {
		t.Fatalf("delivery should be reported as failed")
	}
	if len(out.Messages) != 1 || !strings.HasPrefix(out.Messages[0], msgDeliveryFailed) {
		t.Fatalf("unexpected messages %v", out.Messages)
	}
	if len(exp.removed) != 1 {
		t.Fatalf("export file should be removed after failed delivery")
	}
	if out.FinishedAt.IsZero() {
		t.Fatalf("finish time not recorded")
	}
}

func TestFinalizerExportFailure(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir(), exportErr: errors.New("disk full")}
	mailer := &mockMailer{}
	f := NewFinalizer(exp, mailer, "reports@example.com", nil)

	out := f.Complete(context.Background(), finishedState())
	if out.Delivered || len(mailer.sent) != 0 {
		t.Fatalf("nothing should be sent when export fails")
	}
	if len(out.Messages) != 1 || !strings.HasPrefix(out.Messages[0], msgExportFailed) {
		t.Fatalf("unexpected messages %v", out.Messages)
	}
}

func TestFinalizerWithoutMailer(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	f := NewFinalizer(exp, nil, "reports@example.com", nil)

	out := f.Complete(context.Background(), finishedState())
	if out.Delivered || len(out.Messages) != 1 || out.Messages[0] != MsgMailDisabled {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(exp.removed) != 1 {
		t.Fatalf("export file should still be removed")
	}
}

func TestSummaryDependsOnVariant(t *testing.T) {
	st := finishedState()
	if !strings.Contains(Summary(st), "學習量表") {
		t.Fatalf("extended summary should mention the survey")
	}
	st.Variant = flow.VariantSimple
	if strings.Contains(Summary(st), "學習量表") {
		t.Fatalf("simple summary should not mention the survey")
	}
}
