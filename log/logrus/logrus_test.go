package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/rescache"
)

func TestForwardsLevelsAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Debug("d", nil)
	l.Warn("w", rescache.Fields{"err": errors.New("boom"), "key": "k"})

	if len(hook.Entries) != 2 {
		t.Fatalf("entries=%d", len(hook.Entries))
	}
	e := hook.LastEntry()
	if e.Level != logrus.WarnLevel || e.Message != "w" {
		t.Fatalf("entry=%v %q", e.Level, e.Message)
	}
	if err, _ := e.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "boom" {
		t.Fatalf("error field=%v", e.Data[logrus.ErrorKey])
	}
	if e.Data["key"] != "k" {
		t.Fatalf("data=%v", e.Data)
	}
}
