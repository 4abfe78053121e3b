package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/casalert/internal/config"
)

type recordingNotifier struct {
	got []Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a := &recordingNotifier{err: errA}
	b := &recordingNotifier{}
	c := &recordingNotifier{err: errC}

	err := Multi{a, b, c}.Notify(context.Background(), Notification{Title: "t", Message: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1)
}

func TestMultiNoErrors(t *testing.T) {
	assert.NoError(t, Multi{&recordingNotifier{}}.Notify(context.Background(), Notification{}))
	assert.NoError(t, Multi{}.Notify(context.Background(), Notification{}))
}

func TestNewDisabled(t *testing.T) {
	n, closeFn, err := New(config.NotifyConfig{Enabled: false, Desktop: true}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, Nop{}, n)
}

func TestNewDesktopOnly(t *testing.T) {
	n, closeFn, err := New(config.NotifyConfig{Enabled: true, Desktop: true}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &DesktopNotifier{}, n)
}

func TestNewNothingSelected(t *testing.T) {
	n, closeFn, err := New(config.NotifyConfig{Enabled: true}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, Nop{}, n)
}

func TestNewNATSUnreachable(t *testing.T) {
	_, closeFn, err := New(config.NotifyConfig{
		Enabled: true,
		NATS:    config.NATSConfig{URL: "nats://127.0.0.1:1", Subject: "casalert.alerts.new"},
	}, nil)
	defer closeFn()
	assert.Error(t, err)
}

func TestDesktopCommandDarwin(t *testing.T) {
	d := NewDesktopNotifier(true, nil)
	d.goos = "darwin"

	name, args := d.command(Notification{Title: `CAS "Alerts"`, Message: "Found 3 new alerts"})
	assert.Equal(t, "osascript", name)
	assert.Equal(t, []string{
		"-e", `display notification "Found 3 new alerts" with title "CAS \"Alerts\""`,
		"-e", "beep",
	}, args)

	d.sound = false
	_, args = d.command(Notification{Title: "t", Message: "m"})
	assert.Len(t, args, 2)
}

func TestDesktopCommandLinux(t *testing.T) {
	d := NewDesktopNotifier(true, nil)
	d.goos = "linux"

	name, args := d.command(Notification{Title: "CAS Alerts", Message: "Found 1 new alerts"})
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{"--app-name=casalert", "CAS Alerts", "Found 1 new alerts"}, args)
}

func TestDesktopNotifyRunsCommand(t *testing.T) {
	d := NewDesktopNotifier(false, nil)
	d.goos = "linux"
	d.lookPath = func(string) (string, error) { return "/usr/bin/notify-send", nil }
	var gotName string
	var gotArgs []string
	d.run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	require.NoError(t, d.Notify(context.Background(), Notification{Title: "t", Message: "m"}))
	assert.Equal(t, "notify-send", gotName)
	assert.Equal(t, []string{"--app-name=casalert", "t", "m"}, gotArgs)
}

func TestDesktopNotifyMissingBinary(t *testing.T) {
	d := NewDesktopNotifier(false, nil)
	d.lookPath = func(file string) (string, error) { return "", errors.New("not found") }
	d.run = func(context.Context, string, ...string) error {
		t.Fatal("command must not run when the binary is missing")
		return nil
	}

	err := d.Notify(context.Background(), Notification{Title: "t", Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desktop notifications unavailable")
}

type fakePublisher struct {
	subject string
	data    []byte
	flushed bool
	closed  bool
	pubErr  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.pubErr
}

func (f *fakePublisher) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("context has no deadline")
	}
	f.flushed = true
	return nil
}

func (f *fakePublisher) Close() { f.closed = true }

func TestNATSNotifyPayload(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATSNotifier(pub, "casalert.alerts.new", nil)
	fixed := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	err := n.Notify(context.Background(), Notification{
		Title:     "CAS Alerts",
		Message:   "Found 2 new alerts",
		RunID:     "run-1",
		NewAlerts: 2,
	})
	require.NoError(t, err)
	assert.True(t, pub.flushed)
	assert.Equal(t, "casalert.alerts.new", pub.subject)

	var event map[string]any
	require.NoError(t, json.Unmarshal(pub.data, &event))
	assert.Equal(t, "CAS Alerts", event["title"])
	assert.Equal(t, "Found 2 new alerts", event["message"])
	assert.Equal(t, "run-1", event["run_id"])
	assert.Equal(t, float64(2), event["new_alerts"])
	assert.Equal(t, "2025-03-01T06:00:00Z", event["sent_at"])

	n.Close()
	assert.True(t, pub.closed)
}

func TestNATSNotifyPublishError(t *testing.T) {
	pub := &fakePublisher{pubErr: errors.New("connection closed")}
	n := newNATSNotifier(pub, "casalert.alerts.new", nil)

	err := n.Notify(context.Background(), Notification{Title: "t"})
	require.Error(t, err)
	assert.False(t, pub.flushed)
}

// TestNATSAgainstServer runs only when a NATS server is available
func TestNATSAgainstServer(t *testing.T) {
	url := os.Getenv("CASALERT_TEST_NATS_URL")
	if url == "" {
		t.Skip("CASALERT_TEST_NATS_URL not set")
	}
	n, err := NewNATSNotifier(url, "casalert.test", nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), Notification{Title: "t", Message: "m"}))
}
