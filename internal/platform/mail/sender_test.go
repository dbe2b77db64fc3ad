package mail

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

type countingObserver struct {
	kinds []string
	errs  []error
}

func (o *countingObserver) MailSent(kind string, err error) {
	o.kinds = append(o.kinds, kind)
	o.errs = append(o.errs, err)
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, msg Message) error {
	return errors.New("dial tcp: refused")
}

func TestSMTPSenderUnreachableIsTransportError(t *testing.T) {
	sender := NewSMTPSender(Config{Host: "127.0.0.1", Port: 1, From: "no-reply@inventory.local"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sender.Send(ctx, Message{Kind: KindInvitation, To: "someone@example.com", Subject: "hi", Text: "body"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTransport)
}

func TestSMTPSenderCancelClosesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	sender := NewSMTPSender(Config{Host: "127.0.0.1", Port: port, From: "no-reply@inventory.local"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err = sender.Send(ctx, Message{Kind: KindInvitation, To: "someone@example.com", Subject: "hi", Text: "body"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("relay never saw a connection")
	}
	defer server.Close()
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = server.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestWithObserverReportsOutcome(t *testing.T) {
	obs := &countingObserver{}
	sender := WithObserver(failingSender{}, obs)

	err := sender.Send(context.Background(), Message{Kind: KindPasswordReset, To: "a@example.com"})
	require.Error(t, err)
	require.Len(t, obs.kinds, 1)
	assert.Equal(t, KindPasswordReset, obs.kinds[0])
	assert.Error(t, obs.errs[0])
}

func TestComposeHeaders(t *testing.T) {
	raw := compose("no-reply@inventory.local", Message{To: "a@example.com", Subject: "Reset", Text: "line1\nline2"}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.True(t, strings.HasPrefix(raw, "From: no-reply@inventory.local\r\n"))
	assert.Contains(t, raw, "To: a@example.com\r\n")
	assert.Contains(t, raw, "line1\r\nline2")
}

func TestRenderInvitation(t *testing.T) {
	body, err := Render("invitation.txt", InvitationData{SenderName: "Ada", RoleTitle: "Staff", Link: "http://localhost:8080/signup?invite=abc"})
	require.NoError(t, err)
	assert.Contains(t, body, "Ada invited you")
	assert.Contains(t, body, "/signup?invite=abc")
}
