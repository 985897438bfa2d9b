package mi

import "testing"

func TestParseResult(t *testing.T) {
	msg, err := Parse(`1234^done`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Class != RecordResult || msg.Text != "done" {
		t.Fatalf("got %+v", msg)
	}
	if msg.Token == nil || *msg.Token != 1234 {
		t.Fatalf("got token %v, want 1234", msg.Token)
	}
	if msg.Payload != nil {
		t.Fatalf("expected nil payload, got %+v", msg.Payload)
	}
}

func TestParseNotify(t *testing.T) {
	line := `12345*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x0000000000400b6c",func="main",args=[]},thread-id="1",stopped-threads="all"`
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Class != RecordExec || msg.Text != "stopped" {
		t.Fatalf("got %+v", msg)
	}
	if msg.Payload == nil || msg.Payload.Len() == 0 {
		t.Fatal("expected non-empty payload")
	}
	reason, ok := msg.Payload.GetString("reason")
	if !ok || reason != "breakpoint-hit" {
		t.Fatalf("reason = %q, %v", reason, ok)
	}
	frame, ok := msg.Payload.GetDict("frame")
	if !ok {
		t.Fatal("expected frame dict")
	}
	if f, _ := frame.GetString("func"); f != "main" {
		t.Fatalf("frame.func = %q", f)
	}
}

func TestParseThreadCreated(t *testing.T) {
	msg, err := Parse(`=thread-created,id="3",group-id="i1"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Class != RecordNotify || msg.Text != "thread-created" {
		t.Fatalf("got %+v", msg)
	}
	if msg.Token != nil {
		t.Fatalf("expected no token, got %v", *msg.Token)
	}
	id, _ := msg.Payload.GetString("id")
	gid, _ := msg.Payload.GetString("group-id")
	if id != "3" || gid != "i1" {
		t.Fatalf("id=%q group-id=%q", id, gid)
	}
}

func TestParseMultiple(t *testing.T) {
	block := "1234^done\n" +
		`12345*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x0",func="main",args=[]},thread-id="1",stopped-threads="all"` + "\n" +
		`=thread-created,id="3",group-id="i1"` + "\n(gdb)\n"

	msgs := ParseMultiple(block, func(line string, err error) {
		t.Fatalf("unexpected parse error on %q: %v", line, err)
	})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Class != RecordResult || msgs[1].Class != RecordExec || msgs[2].Class != RecordNotify {
		t.Fatalf("unexpected classes: %+v", msgs)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	d := NewDict()
	d.Set("reason", String("there should be some reason"))

	frame := NewDict()
	frame.Set("addr", String("0x00007f8d6f6b6b7f"))
	frame.Set("func", String("say_hello"))
	d.Set("frame", DictValue(frame))

	d.Set("stopped-threads", List([]Value{String("2"), String("3"), String("4")}))

	out := Format(RecordResult, "stop", d, nil)
	msg, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Format(...)): %v", err)
	}
	if msg.Text != "stop" {
		t.Fatalf("got %+v", msg)
	}
	reason, _ := msg.Payload.GetString("reason")
	if reason != "there should be some reason" {
		t.Fatalf("reason = %q", reason)
	}
	threads, ok := msg.Payload.GetList("stopped-threads")
	if !ok || len(threads) != 3 {
		t.Fatalf("stopped-threads = %+v", threads)
	}
}

func TestDictDuplicateKeyCollapsesToList(t *testing.T) {
	d := NewDict()
	d.Set("group-id", String("i1"))
	d.Set("group-id", String("g-abc123"))

	v, ok := d.Get("group-id")
	if !ok {
		t.Fatal("expected group-id present")
	}
	if v.Kind != KindList || len(v.List) != 2 {
		t.Fatalf("got %+v, want a 2-element list", v)
	}
	if v.List[0].Str != "i1" || v.List[1].Str != "g-abc123" {
		t.Fatalf("got %+v", v.List)
	}
}
