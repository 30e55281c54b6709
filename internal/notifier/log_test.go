package notifier

import (
	"context"
	"testing"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

func TestLogNotifierSendAndReactNeverFail(t *testing.T) {
	n := NewLogNotifier([]string{"alice"}, logger.Default())
	if err := n.Send(context.Background(), "#updates", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := n.React(context.Background(), "msg-1", MarkerSuccess); err != nil {
		t.Fatalf("React: %v", err)
	}
}

func TestLogNotifierAuthorize(t *testing.T) {
	n := NewLogNotifier([]string{"alice"}, logger.Default())
	if !n.Authorize(context.Background(), "alice") {
		t.Error("expected alice to be authorized")
	}
	if n.Authorize(context.Background(), "bob") {
		t.Error("expected bob not to be authorized")
	}
}

func TestLogNotifierAuthorizedPrincipals(t *testing.T) {
	n := NewLogNotifier([]string{"alice", "bob"}, logger.Default())
	principals := n.AuthorizedPrincipals(context.Background())
	if len(principals) != 2 {
		t.Fatalf("expected 2 authorized principals, got %d", len(principals))
	}
}

func TestNewSelectsLogByDefault(t *testing.T) {
	n, err := New(config.NotifierConfig{}, []string{"alice"}, logger.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := n.(*LogNotifier); !ok {
		t.Fatalf("expected a *LogNotifier, got %T", n)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.NotifierConfig{Provider: "carrier-pigeon"}, nil, logger.Default())
	if err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}
