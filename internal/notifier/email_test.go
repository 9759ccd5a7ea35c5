package notifier

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr string
	}{
		{"empty config", EmailConfig{}, "SMTP host is required"},
		{"missing port", EmailConfig{Host: "smtp.example.gov"}, "SMTP port is required"},
		{"missing from", EmailConfig{Host: "smtp.example.gov", Port: 587}, "from address is required"},
		{"missing recipients", EmailConfig{Host: "smtp.example.gov", Port: 587, From: "ivv@example.gov"}, "at least one recipient is required"},
		{"valid config", EmailConfig{Host: "smtp.example.gov", Port: 587, From: "ivv@example.gov", Recipients: []string{"ets@example.gov"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTemplatesRender(t *testing.T) {
	templates, err := LoadTemplates()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	n := testNotification()
	n.Message = "Vendor notes <script>alert(1)</script>"
	data := NotificationToTemplateData(n)

	html, err := templates.RenderHTML(&data)
	if err != nil {
		t.Fatalf("render HTML: %v", err)
	}
	if !strings.Contains(html, "Tax Portal 2025-06") || !strings.Contains(html, "#d32f2f") {
		t.Error("HTML missing title or severity color")
	}
	if strings.Contains(html, "<script>") {
		t.Error("HTML does not escape report text")
	}
	if !strings.Contains(html, "1 high risk") {
		t.Error("HTML missing facts")
	}

	plain, err := templates.RenderPlain(&data)
	if err != nil {
		t.Fatalf("render plain: %v", err)
	}
	if !strings.Contains(plain, "Severity: HIGH") {
		t.Errorf("plain missing uppercased severity:\n%s", plain)
	}
	if !strings.Contains(plain, "Month: 2025-06") {
		t.Errorf("plain missing facts:\n%s", plain)
	}
}

func TestSeverityColor(t *testing.T) {
	tests := map[Severity]string{
		SeverityHigh:   "#d32f2f",
		SeverityMedium: "#f57c00",
		SeverityLow:    "#388e3c",
		SeverityInfo:   "#1976d2",
	}
	for sev, want := range tests {
		if got := severityColor(sev); got != want {
			t.Errorf("severityColor(%q) = %q, want %q", sev, got, want)
		}
	}
}

func TestEmailConfigRejectsBadAddresses(t *testing.T) {
	base := EmailConfig{Host: "smtp.example.gov", Port: 587, From: "ivv@example.gov", Recipients: []string{"ets@example.gov"}}

	bad := base
	bad.From = "not an address"
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "invalid from") {
		t.Errorf("from: err = %v", err)
	}

	bad = base
	bad.Recipients = []string{"ets@example.gov", "cio at example.gov"}
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "invalid recipient") {
		t.Errorf("recipient: err = %v", err)
	}
}

func TestCompose(t *testing.T) {
	e, err := NewEmailNotifier(EmailConfig{
		Host:       "smtp.example.gov",
		Port:       587,
		From:       "IV&V Dashboard <ivv@example.gov>",
		Recipients: []string{"ets@example.gov", "CIO <cio@example.gov>"},
	})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	e.now = func() time.Time { return time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC) }

	raw, err := e.compose("Report submitted: Café\r\nBcc: evil@example.com", "plain body", "<p>html body</p>")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	if got := msg.Header.Get("Bcc"); got != "" {
		t.Errorf("subject line break leaked a Bcc header: %q", got)
	}
	to, err := msg.Header.AddressList("To")
	if err != nil || len(to) != 2 || to[1].Address != "cio@example.gov" {
		t.Errorf("To = %v (%v)", to, err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if err != nil || !strings.HasPrefix(subject, "Report submitted: Café Bcc:") {
		t.Errorf("subject = %q (%v)", subject, err)
	}
	if !strings.HasSuffix(msg.Header.Get("Message-ID"), "@example.gov>") {
		t.Errorf("Message-ID = %q", msg.Header.Get("Message-ID"))
	}
	if date, err := msg.Header.Date(); err != nil || date.Year() != 2025 {
		t.Errorf("Date = %v (%v)", date, err)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/alternative" {
		t.Fatalf("content type = %q (%v)", mediaType, err)
	}
	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		types = append(types, part.Header.Get("Content-Type"))
	}
	if len(types) != 2 || !strings.HasPrefix(types[1], "text/html") {
		t.Errorf("parts = %v", types)
	}
}

// smtpRecorder is a minimal SMTP server that records DATA payloads.
type smtpRecorder struct {
	ln       net.Listener
	mu       sync.Mutex
	messages []string
	rcpts    []string
	wg       sync.WaitGroup
}

func newSMTPRecorder(t *testing.T) *smtpRecorder {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &smtpRecorder{ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.session(conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *smtpRecorder) session(conn net.Conn) {
	tc := textproto.NewConn(conn)
	defer tc.Close()

	_ = tc.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			_ = tc.PrintfLine("250 localhost")
		case "MAIL":
			_ = tc.PrintfLine("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpts = append(s.rcpts, arg)
			s.mu.Unlock()
			_ = tc.PrintfLine("250 OK")
		case "DATA":
			_ = tc.PrintfLine("354 go ahead")
			data, err := tc.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, string(data))
			s.mu.Unlock()
			_ = tc.PrintfLine("250 queued")
		case "QUIT":
			_ = tc.PrintfLine("221 bye")
			return
		default:
			_ = tc.PrintfLine("502 not implemented")
		}
	}
}

func (s *smtpRecorder) hostPort(t *testing.T) (string, int) {
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func TestEmailNotifierSend(t *testing.T) {
	server := newSMTPRecorder(t)
	host, port := server.hostPort(t)

	notifier, err := NewEmailNotifier(EmailConfig{
		Host:       host,
		Port:       port,
		From:       "IV&V Dashboard <ivv@example.gov>",
		Recipients: []string{"ets@example.gov", "cio@example.gov"},
	})
	if err != nil {
		t.Fatalf("create notifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := notifier.Send(ctx, testNotification()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(server.messages))
	}
	if !strings.Contains(server.messages[0], "Subject: [HIGH] Report submitted: Tax Portal 2025-06") {
		t.Errorf("message missing subject:\n%s", server.messages[0])
	}
	if len(server.rcpts) != 2 || !strings.Contains(server.rcpts[1], "cio@example.gov") {
		t.Errorf("recipients = %v", server.rcpts)
	}
}

func TestEmailNotifierSendHonorsContext(t *testing.T) {
	// Accepts connections but never greets.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	notifier, err := NewEmailNotifier(EmailConfig{Host: host, Port: port, From: "ivv@example.gov", Recipients: []string{"ets@example.gov"}})
	if err != nil {
		t.Fatalf("create notifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := notifier.Send(ctx, testNotification()); err == nil {
		t.Fatal("expected error from silent server")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Send took %v after the context deadline", elapsed)
	}
}
