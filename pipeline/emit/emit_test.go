package emit

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countingEmitter{}, &countingEmitter{}
	m := Multi{a, nil, b}
	m.Emit(Event{RunID: "r", Msg: "x"})

	if a.n != 1 || b.n != 1 {
		t.Error("Multi did not fan out to every emitter")
	}
}

func TestNullEmitter(t *testing.T) {
	var e Emitter = NewNullEmitter()
	e.Emit(Event{RunID: "r"})
}

func TestLogEmitter(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	e := NewLogEmitter(log)

	e.Emit(Event{RunID: "r", Step: 1, NodeID: "scrape", Msg: MsgNodeStart})
	e.Emit(Event{RunID: "r", Step: 1, NodeID: "scrape", Msg: MsgNodeRetry, Meta: map[string]interface{}{"attempt": 1}})
	e.Emit(Event{RunID: "r", Step: 1, NodeID: "scrape", Msg: MsgNodeError, Meta: map[string]interface{}{"error": "boom"}})

	entries := hook.AllEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantLevels := []logrus.Level{logrus.DebugLevel, logrus.WarnLevel, logrus.ErrorLevel}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, want)
		}
	}
	if entries[1].Data["attempt"] != 1 {
		t.Errorf("attempt field = %v", entries[1].Data["attempt"])
	}
	if entries[2].Data["node_id"] != "scrape" || entries[2].Data["error"] != "boom" {
		t.Errorf("unexpected fields: %v", entries[2].Data)
	}
}
