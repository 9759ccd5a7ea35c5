package stream

import (
	"net/http/httptest"
	"testing"
)

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := newSSEWriter(rec, rec)

	if err := sse.retry(5000); err != nil {
		t.Fatal(err)
	}
	if err := sse.json("report.created", map[string]string{"id": "r1"}); err != nil {
		t.Fatal(err)
	}
	if err := sse.comment("heartbeat"); err != nil {
		t.Fatal(err)
	}
	if err := sse.event("note", "line one\r\nline two"); err != nil {
		t.Fatal(err)
	}

	want := "retry: 5000\n\n" +
		"id: 1\nevent: report.created\ndata: {\"id\":\"r1\"}\n\n" +
		": heartbeat\n\n" +
		"id: 2\nevent: note\ndata: line one\ndata: line two\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("stream =\n%q\nwant\n%q", got, want)
	}
	if !rec.Flushed {
		t.Error("writer should flush")
	}
}
