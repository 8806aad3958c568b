// internal/observer/observer_test.go
package observer

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

var (
	meta = webview.Meta{Gen: "gen-1"}
	cred = &policy.Credential{Username: "alice", Secret: "hunter2"}

	sampleEvents = []webview.Event{
		webview.PolicyDecision{Meta: meta, URL: "https://evil.example/", Host: "evil.example", Verdict: policy.Deny},
		webview.PolicyDecision{Meta: meta, URL: "https://example.com/", Host: "example.com", Verdict: policy.Allow},
		webview.ProvisionalStarted{Meta: meta},
		webview.AuthChallengeEvent{
			Meta:        meta,
			Challenge:   webview.AuthChallenge{Method: webview.AuthBasic, Host: "example.com", Realm: "staff"},
			Disposition: webview.UseCredential,
			Credential:  cred,
		},
		webview.ServerRedirect{Meta: meta, URL: "https://example.com/home"},
		webview.Committed{Meta: meta, URL: "https://example.com/home"},
		webview.Finished{Meta: meta, Title: "Home"},
		webview.Failed{Meta: meta, Err: errors.New("net::ERR_ABORTED")},
	}
)

type eventSink struct{ events []webview.Event }

func (s *eventSink) observe(ev webview.Event) { s.events = append(s.events, ev) }

func TestFanout(t *testing.T) {
	a, b := &eventSink{}, &eventSink{}
	fan := Fanout(a.observe, nil, b.observe)

	for _, ev := range sampleEvents[:3] {
		fan(ev)
	}
	assert.Equal(t, sampleEvents[:3], a.events)
	assert.Equal(t, sampleEvents[:3], b.events)

	// An empty fanout is a valid no-op observer.
	assert.NotPanics(t, func() { Fanout()(sampleEvents[0]) })
}

func TestLogObserver(t *testing.T) {
	core, logs := zapobserver.New(zapcore.DebugLevel)
	observe := NewLogObserver(zap.New(core))

	for _, ev := range sampleEvents {
		observe(ev)
	}
	require.Equal(t, len(sampleEvents), logs.Len())

	denied := logs.FilterMessage("Navigation denied.").All()
	require.Len(t, denied, 1)
	assert.Equal(t, zapcore.InfoLevel, denied[0].Level)
	assert.Equal(t, "evil.example", denied[0].ContextMap()["host"])
	assert.Equal(t, "gen-1", denied[0].ContextMap()["generation"])

	auth := logs.FilterMessage("Authentication challenge answered.").All()
	require.Len(t, auth, 1)
	assert.Equal(t, "alice", auth[0].ContextMap()["username"])
	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			assert.NotEqual(t, "hunter2", v, "secrets must never be logged")
		}
	}

	failed := logs.FilterMessage("Navigation failed.").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
}

func TestRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	for _, ev := range sampleEvents {
		rec.Observe(ev)
	}
	require.NoError(t, rec.Err())
	assert.NotContains(t, buf.String(), "hunter2")

	var records []Record
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), "every line is one JSON object")
		records = append(records, r)
	}
	require.Len(t, records, len(sampleEvents))

	assert.True(t, records[0].Time.Equal(fixed))
	records[0].Time = time.Time{}
	assert.Equal(t, Record{
		Kind:       webview.KindPolicyDecision,
		Generation: "gen-1",
		URL:        "https://evil.example/",
		Host:       "evil.example",
		Verdict:    "deny",
	}, records[0])
	assert.Equal(t, "alice", records[3].Username)
	assert.Equal(t, "use-credential", records[3].Disposition)
	assert.Equal(t, "Home", records[6].Title)
	assert.Equal(t, "net::ERR_ABORTED", records[7].Error)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorder_WriteError(t *testing.T) {
	rec := NewRecorder(failingWriter{})
	rec.Observe(sampleEvents[0])
	rec.Observe(sampleEvents[1])

	err := rec.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy_decision")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	for _, ev := range sampleEvents {
		m.Observe(ev)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthChallenges.WithLabelValues("basic", "use-credential")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Navigation.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Navigation.WithLabelValues("failed")))
	assert.Equal(t, 5, testutil.CollectAndCount(m.Navigation))

	// Registering twice on the same registry is a programming error.
	assert.Panics(t, func() { NewMetrics(reg) })
}
