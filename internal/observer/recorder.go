// internal/observer/recorder.go
package observer

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webgate/internal/webview"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one line of the audit trail.
type Record struct {
	Time        time.Time         `json:"time"`
	Kind        webview.EventKind `json:"kind"`
	Generation  string            `json:"generation"`
	URL         string            `json:"url,omitempty"`
	Host        string            `json:"host,omitempty"`
	Verdict     string            `json:"verdict,omitempty"`
	Method      string            `json:"method,omitempty"`
	Realm       string            `json:"realm,omitempty"`
	Proxy       bool              `json:"proxy,omitempty"`
	Disposition string            `json:"disposition,omitempty"`
	Username    string            `json:"username,omitempty"`
	Title       string            `json:"title,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Recorder writes every event as a JSON line. Secrets are never written.
type Recorder struct {
	mu  sync.Mutex
	enc *jsoniter.Encoder
	now func() time.Time
	err error
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w), now: time.Now}
}

// Observe is a webview.Observer.
func (r *Recorder) Observe(ev webview.Event) {
	rec := toRecord(ev)
	rec.Time = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("failed to record %s event: %w", ev.Kind(), err)
	}
}

// Err returns the first write error. Recording stops after it.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func toRecord(ev webview.Event) Record {
	rec := Record{Kind: ev.Kind(), Generation: ev.Generation()}
	switch e := ev.(type) {
	case webview.PolicyDecision:
		rec.URL, rec.Host, rec.Verdict = e.URL, e.Host, e.Verdict.String()
	case webview.AuthChallengeEvent:
		rec.Method = string(e.Challenge.Method)
		rec.Host = e.Challenge.Host
		rec.Realm = e.Challenge.Realm
		rec.Proxy = e.Challenge.Proxy
		rec.Disposition = string(e.Disposition)
		if e.Credential != nil {
			rec.Username = e.Credential.Username
		}
	case webview.ServerRedirect:
		rec.URL = e.URL
	case webview.Committed:
		rec.URL = e.URL
	case webview.Finished:
		rec.Title = e.Title
	case webview.ProvisionalFailed:
		rec.Error = errString(e.Err)
	case webview.Failed:
		rec.Error = errString(e.Err)
	}
	return rec
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
